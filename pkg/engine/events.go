package engine

import (
	"time"

	"github.com/marmos91/offsync/pkg/connectivity"
	"github.com/marmos91/offsync/pkg/sync"
)

// EventType discriminates engine events.
type EventType string

const (
	// EventConnectivityChanged is a stable connectivity transition.
	EventConnectivityChanged EventType = "connectivity_changed"

	// EventSyncAttempt is one replay attempt inside a sync cycle.
	EventSyncAttempt EventType = "sync_attempt"

	// EventSyncCycle is a finished sync cycle.
	EventSyncCycle EventType = "sync_cycle"

	// EventDeadLetter is a request that gave up and needs manual handling.
	EventDeadLetter EventType = "dead_letter"
)

// Event is one entry on the engine's multiplexed event stream. Exactly one
// of the payload pointers is set, matching Type.
type Event struct {
	Type EventType
	Time time.Time

	// Connectivity is set for EventConnectivityChanged.
	Connectivity *connectivity.State

	// Attempt is set for EventSyncAttempt and EventDeadLetter.
	Attempt *sync.AttemptResult

	// Cycle is set for EventSyncCycle.
	Cycle *sync.RunSummary
}
