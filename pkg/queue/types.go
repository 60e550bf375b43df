// Package queue implements a durable, priority-ordered queue of outbound
// requests captured while the network is unavailable.
//
// Every mutation is written to durable storage before the in-memory state
// changes, so an acknowledged request survives a crash. On restart the queue
// reloads from storage; requests that were mid-flight (Syncing) when the
// process died are reset to Pending and retried.
//
// Dispatch order is highest priority first, oldest enqueue time within a
// priority. A request becomes eligible only once its backoff deadline
// (NextAttemptAt) has passed. Requests that exhaust their retry budget, or
// that fail in a way retrying cannot fix, move to a dead-letter set that is
// retained for inspection and manual requeue.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a queued request.
type Status string

const (
	// StatusPending means the request is waiting to be dispatched.
	StatusPending Status = "pending"

	// StatusSyncing means a sync cycle currently owns the request.
	StatusSyncing Status = "syncing"

	// StatusCompleted means the server acknowledged the request.
	// Completed requests are deleted from storage, so the status only
	// appears on the value returned to the caller.
	StatusCompleted Status = "completed"

	// StatusDeadLettered means the request gave up: it exhausted its
	// retry budget or failed permanently.
	StatusDeadLettered Status = "dead_lettered"
)

// ============================================================================
// Errors
// ============================================================================

var (
	// ErrNotFound is returned when no request with the given ID exists.
	ErrNotFound = errors.New("queue: request not found")

	// ErrEmpty is returned by PeekNext when no request is eligible.
	ErrEmpty = errors.New("queue: no eligible request")

	// ErrInvalidTransition is returned when a state change is requested
	// from a state that does not allow it.
	ErrInvalidTransition = errors.New("queue: invalid state transition")

	// ErrQueueClosed is returned for operations on a closed queue.
	ErrQueueClosed = errors.New("queue: closed")
)

// StorageError wraps a durable-layer failure during a queue operation.
// The write-ahead contract means these surface before any in-memory state
// changed: the caller can safely retry the whole operation.
type StorageError struct {
	Op  string // "persist", "delete", "load"
	ID  uuid.UUID
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("queue: %s %s: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// ============================================================================
// Request
// ============================================================================

// Request is a captured outbound operation awaiting replay.
// It is owned by the Queue; accessors return copies.
type Request struct {
	ID       uuid.UUID         `json:"id"`
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     []byte            `json:"body,omitempty"`

	// Priority orders dispatch; higher values go first.
	Priority int `json:"priority"`

	CreatedAt time.Time `json:"created_at"`
	Status    Status    `json:"status"`

	// RetryCount is the number of failed attempts so far.
	RetryCount int `json:"retry_count"`

	// MaxRetries bounds RetryCount before dead-lettering.
	MaxRetries int `json:"max_retries"`

	// NextAttemptAt gates eligibility; zero means immediately eligible.
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`

	// LastError describes the most recent failure, for operators.
	LastError string `json:"last_error,omitempty"`
}

// eligible reports whether the request may be dispatched at now.
func (r *Request) eligible(now time.Time) bool {
	return r.Status == StatusPending &&
		(r.NextAttemptAt.IsZero() || !now.Before(r.NextAttemptAt))
}

// clone returns an independent copy safe to hand to callers.
func (r *Request) clone() *Request {
	out := *r
	if r.Headers != nil {
		out.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			out.Headers[k] = v
		}
	}
	out.Body = append([]byte(nil), r.Body...)
	return &out
}

// Submission describes a request to enqueue.
type Submission struct {
	Endpoint string
	Method   string
	Headers  map[string]string
	Body     []byte
	Priority int

	// MaxRetries overrides the queue default when > 0.
	MaxRetries int
}

// Stats contains queue depth counters for observability.
type Stats struct {
	// Pending is the number of requests waiting or backing off.
	Pending int `json:"pending"`

	// Syncing is the number of requests currently owned by a sync cycle.
	Syncing int `json:"syncing"`

	// DeadLettered is the number of retained dead letters.
	DeadLettered int `json:"dead_lettered"`
}

// ============================================================================
// Metrics
// ============================================================================

// Metrics provides observability for queue operations.
// A nil Metrics skips collection entirely.
type Metrics interface {
	// RecordEnqueue records a request accepted into the queue.
	RecordEnqueue()

	// RecordCompleted records a request acknowledged and removed.
	RecordCompleted()

	// RecordRetry records a failed attempt that will be retried.
	RecordRetry()

	// RecordDeadLetter records a request moved to the dead-letter set.
	RecordDeadLetter()

	// RecordDepth records current queue depths after a mutation.
	RecordDepth(pending, deadLettered int)
}
