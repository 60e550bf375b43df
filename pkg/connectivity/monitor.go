package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/offsync/internal/logger"
)

// Configuration defaults
const (
	// DefaultDebounceWindow is how long a raw signal must stay stable
	// before it is classified and emitted.
	DefaultDebounceWindow = 500 * time.Millisecond

	// DefaultProbeTimeout bounds the active reachability probe. It is
	// deliberately short and independent of the sync-attempt deadline.
	DefaultProbeTimeout = 2 * time.Second
)

// Config holds Monitor configuration.
type Config struct {
	// DebounceWindow collapses rapid link flapping into at most one
	// emitted transition per stable window. Default: 500ms.
	DebounceWindow time.Duration

	// ProbeTimeout bounds each active probe. Default: 2s.
	ProbeTimeout time.Duration
}

// Monitor classifies connectivity and emits a debounced stream of stable
// state changes.
//
// Classification per raw signal:
//   - no link            -> Offline
//   - link up, probe ok  -> Online
//   - link up, probe err -> Limited
//
// The state machine is Unknown -> {Online, Offline, Limited} with no
// terminal state; the monitor runs for the process lifetime.
//
// Thread safety: CurrentState and Subscribe may be called from any
// goroutine. Handlers run on the monitor goroutine and must not block.
type Monitor struct {
	source   Source
	prober   Prober
	debounce time.Duration
	probeTO  time.Duration
	clock    func() time.Time

	mu     sync.Mutex
	state  State
	subs   map[uint64]func(State)
	nextID uint64

	// latest raw signal, latched so the platform callback never blocks
	pendingMu sync.Mutex
	pending   LinkState
	notify    chan struct{}

	sourceSub Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMonitor creates a monitor over the given raw-signal source and prober.
// The monitor does nothing until Start is called.
func NewMonitor(source Source, prober Prober, cfg Config) *Monitor {
	debounce := cfg.DebounceWindow
	if debounce <= 0 {
		debounce = DefaultDebounceWindow
	}
	probeTO := cfg.ProbeTimeout
	if probeTO <= 0 {
		probeTO = DefaultProbeTimeout
	}

	return &Monitor{
		source:   source,
		prober:   prober,
		debounce: debounce,
		probeTO:  probeTO,
		clock:    time.Now,
		subs:     make(map[uint64]func(State)),
		notify:   make(chan struct{}, 1),
	}
}

// Start subscribes to the raw signal and begins classification. The first
// classification happens immediately, without waiting for a debounce window.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	m.sourceSub = m.source.Subscribe(func(link LinkState) {
		m.pendingMu.Lock()
		m.pending = link
		m.pendingMu.Unlock()

		select {
		case m.notify <- struct{}{}:
		default:
		}
	})

	logger.Info("Connectivity monitor started",
		"debounce", m.debounce, "probe_timeout", m.probeTO)

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop cancels the raw subscription and waits for the monitor goroutine.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.sourceSub.Cancel()
	m.wg.Wait()
}

// CurrentState returns a synchronous snapshot of the last stable state.
// Before the first classification the status is StatusUnknown.
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers a handler for stable state changes. Only changes are
// delivered; the current state is available via CurrentState.
func (m *Monitor) Subscribe(handler func(State)) Subscription {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = handler
	m.mu.Unlock()

	return Subscription{cancel: func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}}
}

// run is the monitor loop: classify immediately on start, then re-classify
// after each debounce window that follows a raw signal change.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.evaluate(ctx, m.source.Current())

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-m.notify:
			// Raw signal changed: restart the stability window
			if timer == nil {
				timer = time.NewTimer(m.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(m.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil

			m.pendingMu.Lock()
			link := m.pending
			m.pendingMu.Unlock()

			m.evaluate(ctx, link)
		}
	}
}

// evaluate classifies a raw link state and emits the result if it differs
// from the last stable state.
func (m *Monitor) evaluate(ctx context.Context, link LinkState) {
	status := StatusOffline
	transport := TransportNone

	if link.Up {
		transport = link.Transport

		probeCtx, cancel := context.WithTimeout(ctx, m.probeTO)
		err := m.prober.Probe(probeCtx)
		cancel()

		if err != nil {
			// Probe failure is never fatal, it only degrades classification
			status = StatusLimited
			logger.Debug("Connectivity probe failed", "transport", transport, "error", err)
		} else {
			status = StatusOnline
		}
	}

	newState := State{
		Status:     status,
		Transport:  transport,
		ObservedAt: m.clock(),
	}

	m.mu.Lock()
	changed := newState.Status != m.state.Status || newState.Transport != m.state.Transport
	if changed {
		m.state = newState
	}
	handlers := make([]func(State), 0, len(m.subs))
	for _, h := range m.subs {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	logger.Info("Connectivity changed", "status", newState.Status, "transport", newState.Transport)

	for _, h := range handlers {
		h(newState)
	}
}
