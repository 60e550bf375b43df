// Package connectivity observes network reachability for the offline engine.
//
// The platform's link signal (up/down, transport type) is necessary but not
// sufficient: a link can be up with no real internet path behind it (captive
// portals, dead gateways). The Monitor therefore combines the raw platform
// signal with an active probe against a well-known endpoint, and debounces
// rapid link flapping so downstream consumers (the sync coordinator) see at
// most one transition per stable window instead of a sync storm.
package connectivity

import (
	"time"
)

// Status classifies reachability.
type Status int

const (
	// StatusUnknown is the state before the first classification.
	StatusUnknown Status = iota

	// StatusOnline means the probe confirmed a real internet path.
	StatusOnline

	// StatusOffline means no link is up.
	StatusOffline

	// StatusLimited means the link is up but the probe failed.
	StatusLimited
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	case StatusLimited:
		return "limited"
	default:
		return "unknown"
	}
}

// Transport identifies the link type reported by the platform.
type Transport int

const (
	TransportNone Transport = iota
	TransportWifi
	TransportCellular
	TransportEthernet
)

// String returns the string representation of Transport.
func (t Transport) String() string {
	switch t {
	case TransportWifi:
		return "wifi"
	case TransportCellular:
		return "cellular"
	case TransportEthernet:
		return "ethernet"
	default:
		return "none"
	}
}

// State is an immutable connectivity snapshot. A new value is emitted on
// every stable transition.
type State struct {
	Status     Status
	Transport  Transport
	ObservedAt time.Time
}

// LinkState is the raw platform reachability signal.
type LinkState struct {
	Up        bool
	Transport Transport
}

// Subscription is a handle to a push-based subscription. Cancel stops
// delivery; it is safe to call more than once.
type Subscription struct {
	cancel func()
}

// Cancel stops delivery to the subscribed handler.
func (s Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Source delivers raw platform link-state changes to the Monitor.
//
// Hosts adapt their platform callback mechanism to this interface,
// typically via SignalSource.
type Source interface {
	// Current returns the latest raw link state.
	Current() LinkState

	// Subscribe registers a handler for raw link-state changes and
	// returns a cancellable subscription.
	Subscribe(handler func(LinkState)) Subscription
}
