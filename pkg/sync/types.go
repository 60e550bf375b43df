// Package sync drains the request queue when connectivity allows.
//
// A sync cycle is single-flight: whatever triggers it (a connectivity
// transition to Online, the periodic timer, or a manual call), at most one
// cycle runs at a time and concurrent callers join the in-progress cycle
// instead of starting another. A cycle drains eligible requests in queue
// order, classifies each outcome, and stops early if connectivity is lost
// mid-drain; unattempted requests simply stay queued.
package sync

import (
	"time"

	"github.com/google/uuid"
)

// Trigger identifies what started a sync cycle.
type Trigger string

const (
	// TriggerConnectivity is a cycle started by a transition to Online.
	TriggerConnectivity Trigger = "connectivity"

	// TriggerTimer is a cycle started by the periodic interval.
	TriggerTimer Trigger = "timer"

	// TriggerManual is a cycle started by an explicit SyncNow call.
	TriggerManual Trigger = "manual"
)

// Outcome classifies a single replay attempt.
type Outcome string

const (
	// OutcomeCompleted means the server acknowledged the request.
	OutcomeCompleted Outcome = "completed"

	// OutcomeRetried means the attempt failed transiently; the request
	// backs off and stays queued.
	OutcomeRetried Outcome = "retried"

	// OutcomeDeadLettered means the request gave up, either permanently
	// rejected or out of retry budget.
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// AttemptResult describes one replay attempt within a cycle.
type AttemptResult struct {
	RequestID  uuid.UUID
	Endpoint   string
	Outcome    Outcome
	StatusCode int // 0 when the attempt never reached the server
	Err        error
}

// RunSummary describes a completed sync cycle.
type RunSummary struct {
	CycleID      uuid.UUID
	Trigger      Trigger
	StartedAt    time.Time
	Duration     time.Duration
	Attempted    int
	Completed    int
	Retried      int
	DeadLettered int

	// Aborted is true when connectivity was lost mid-cycle and the
	// remaining requests were left queued.
	Aborted bool
}

// ============================================================================
// Metrics
// ============================================================================

// Metrics provides observability for sync cycles.
// A nil Metrics skips collection entirely.
type Metrics interface {
	// RecordCycle records a finished cycle and its duration.
	RecordCycle(trigger string, duration time.Duration)

	// RecordAttempt records one replay attempt by outcome.
	RecordAttempt(outcome string)
}
