package connectivity

import (
	"sync"
)

// SignalSource is a push-based Source fed by the host application.
//
// The host bridges its platform reachability callback (whatever mechanism
// that is) by calling Update on every raw change. SignalSource fans the
// change out to all subscribed handlers.
type SignalSource struct {
	mu       sync.Mutex
	current  LinkState
	handlers map[uint64]func(LinkState)
	nextID   uint64
}

// NewSignalSource creates a source with the given initial link state.
func NewSignalSource(initial LinkState) *SignalSource {
	return &SignalSource{
		current:  initial,
		handlers: make(map[uint64]func(LinkState)),
	}
}

// Current returns the latest raw link state.
func (s *SignalSource) Current() LinkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update records a new raw link state and notifies subscribers.
// Handlers are invoked synchronously on the caller's goroutine.
func (s *SignalSource) Update(link LinkState) {
	s.mu.Lock()
	s.current = link
	handlers := make([]func(LinkState), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		h(link)
	}
}

// Subscribe registers a handler for raw link-state changes.
func (s *SignalSource) Subscribe(handler func(LinkState)) Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = handler
	s.mu.Unlock()

	return Subscription{cancel: func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}}
}
