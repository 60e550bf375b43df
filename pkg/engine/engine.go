// Package engine assembles the offline-support components behind a single
// handle: connectivity monitoring, the bounded cache, the durable request
// queue, and the sync coordinator, all sharing one durable storage backend.
//
// There is deliberately no package-level singleton. Hosts construct an
// Engine explicitly, which keeps multiple engines in one process possible
// (separate storage paths) and keeps tests hermetic.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/pkg/cache"
	"github.com/marmos91/offsync/pkg/config"
	"github.com/marmos91/offsync/pkg/connectivity"
	"github.com/marmos91/offsync/pkg/metrics"
	"github.com/marmos91/offsync/pkg/queue"
	"github.com/marmos91/offsync/pkg/storage"
	badgerstore "github.com/marmos91/offsync/pkg/storage/badger"
	"github.com/marmos91/offsync/pkg/storage/memory"
	"github.com/marmos91/offsync/pkg/sync"
)

// Options injects the engine's collaborators. Every field is optional;
// nil fields are built from the configuration.
type Options struct {
	// Transport replays queued requests. Defaults to an HTTP transport
	// against cfg.Sync.BaseURL.
	Transport sync.Transport

	// Source delivers raw platform link-state changes. Defaults to a
	// push-based SignalSource starting from "link up, unknown transport"
	// that the host feeds via Engine.UpdateLink.
	Source connectivity.Source

	// Prober distinguishes Online from Limited. Defaults to an HTTP
	// prober against cfg.Connectivity.ProbeURL.
	Prober connectivity.Prober

	// Storage overrides the durable backend. When set, the engine does
	// not close it on Stop. Defaults to the backend cfg.Storage selects.
	Storage storage.Store

	// EventBuffer sizes the Events channel (default 64).
	EventBuffer int
}

// Engine wires the offline-support components together.
type Engine struct {
	cfg *config.Config

	store      storage.Store
	ownedStore bool

	signal      *connectivity.SignalSource // nil when the host injected a Source
	monitor     *connectivity.Monitor
	cacheStore  *cache.Store
	requests    *queue.Queue
	coordinator *sync.Coordinator

	events  chan Event
	connSub connectivity.Subscription
}

// New builds an engine from the configuration, wiring defaults for every
// collaborator Options leaves nil. The durable backend is opened (or
// adopted) here, and both the cache and the queue reload their persisted
// state before New returns.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	e := &Engine{cfg: cfg}

	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	e.events = make(chan Event, opts.EventBuffer)

	store, owned, err := openStorage(cfg, opts.Storage)
	if err != nil {
		return nil, err
	}
	e.store = store
	e.ownedStore = owned

	e.cacheStore, err = cache.New(store, cache.Config{
		Namespace:     cfg.Cache.Namespace,
		MaxBytes:      cfg.Cache.MaxSize.Bytes(),
		MaxEntries:    cfg.Cache.MaxEntries,
		Strategy:      cache.Strategy(cfg.Cache.Strategy),
		DefaultTTL:    cfg.Cache.DefaultTTL,
		SweepInterval: cfg.Cache.SweepInterval,
	}, metrics.NewCacheMetrics(cfg.Cache.Namespace))
	if err != nil {
		e.closeStore()
		return nil, fmt.Errorf("building cache: %w", err)
	}

	e.requests, err = queue.New(store, queue.Config{
		MaxRetries: cfg.Queue.MaxRetries,
		Backoff: queue.NewBackoffPolicy(
			cfg.Queue.BaseBackoff,
			cfg.Queue.MaxBackoff,
			cfg.Queue.JitterRatio,
		),
	}, metrics.NewQueueMetrics())
	if err != nil {
		e.closeStore()
		return nil, fmt.Errorf("building queue: %w", err)
	}

	source := opts.Source
	if source == nil {
		// Until the host reports otherwise, assume the link is up and
		// let the probe decide between Online and Limited.
		e.signal = connectivity.NewSignalSource(connectivity.LinkState{Up: true})
		source = e.signal
	}

	prober := opts.Prober
	if prober == nil {
		prober = connectivity.NewHTTPProber(cfg.Connectivity.ProbeURL)
	}

	e.monitor = connectivity.NewMonitor(source, prober, connectivity.Config{
		DebounceWindow: cfg.Connectivity.DebounceWindow,
		ProbeTimeout:   cfg.Connectivity.ProbeTimeout,
	})

	transport := opts.Transport
	if transport == nil {
		transport = sync.NewHTTPTransport(cfg.Sync.BaseURL)
	}

	e.coordinator = sync.NewCoordinator(e.requests, transport, e.monitor, sync.Config{
		Interval:       cfg.Sync.Interval,
		AttemptTimeout: cfg.Sync.AttemptTimeout,
	}, sync.Options{
		Metrics:   metrics.NewSyncMetrics(),
		OnAttempt: e.publishAttempt,
		OnCycle:   e.publishCycle,
	})

	return e, nil
}

// openStorage adopts the injected store or opens one per the config.
func openStorage(cfg *config.Config, injected storage.Store) (storage.Store, bool, error) {
	if injected != nil {
		return injected, false, nil
	}

	switch cfg.Storage.Backend {
	case "memory":
		return memory.New(), true, nil
	case "badger":
		store, err := badgerstore.Open(badgerstore.Options{Path: cfg.Storage.Path})
		if err != nil {
			return nil, false, fmt.Errorf("opening storage at %s: %w", cfg.Storage.Path, err)
		}
		return store, true, nil
	default:
		return nil, false, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Start launches the monitor, the cache sweeper, and the sync coordinator.
// Stop must be called to release them.
func (e *Engine) Start(ctx context.Context) {
	e.connSub = e.monitor.Subscribe(e.publishConnectivity)

	e.monitor.Start(ctx)
	e.cacheStore.Start(ctx)
	e.coordinator.Start(ctx)

	logger.Info("Engine started",
		"storage", e.cfg.Storage.Backend,
		"cache_strategy", e.cfg.Cache.Strategy,
		"sync_interval", e.cfg.Sync.Interval)
}

// Stop shuts the engine down in dependency order: the coordinator first so
// an in-flight drain finishes, then the background workers, then the
// durable backend (only if the engine opened it).
func (e *Engine) Stop() {
	e.coordinator.Stop()
	e.cacheStore.Close()
	e.monitor.Stop()
	e.connSub.Cancel()

	e.closeStore()
	close(e.events)

	logger.Info("Engine stopped")
}

func (e *Engine) closeStore() {
	if !e.ownedStore {
		return
	}
	if err := e.store.Close(); err != nil {
		logger.Error("Failed to close storage", "error", err)
	}
}

// ============================================================================
// Component access
// ============================================================================

// Cache returns the bounded offline cache.
func (e *Engine) Cache() *cache.Store {
	return e.cacheStore
}

// Queue returns the durable request queue.
func (e *Engine) Queue() *queue.Queue {
	return e.requests
}

// ConnectivityState returns the last stable connectivity classification.
func (e *Engine) ConnectivityState() connectivity.State {
	return e.monitor.CurrentState()
}

// UpdateLink feeds a raw platform link-state change into the monitor.
// It is a no-op when the host injected its own Source.
func (e *Engine) UpdateLink(link connectivity.LinkState) {
	if e.signal != nil {
		e.signal.Update(link)
	}
}

// SyncNow starts a drain cycle, or joins the one already running.
func (e *Engine) SyncNow(ctx context.Context) (sync.RunSummary, error) {
	return e.coordinator.SyncNow(ctx)
}

// LastSyncSummary returns the most recent cycle summary, or nil before the
// first cycle.
func (e *Engine) LastSyncSummary() *sync.RunSummary {
	return e.coordinator.LastSummary()
}

// Enqueue captures an outbound request for replay once connectivity allows.
func (e *Engine) Enqueue(ctx context.Context, sub queue.Submission) (*queue.Request, error) {
	return e.requests.Enqueue(ctx, sub)
}

// publish pushes an event without ever blocking a producer. Consumers that
// fall behind lose events; the channel is a notification surface, not a
// durable log.
func (e *Engine) publish(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

func (e *Engine) publishConnectivity(state connectivity.State) {
	e.publish(Event{
		Type:         EventConnectivityChanged,
		Time:         time.Now(),
		Connectivity: &state,
	})
}

func (e *Engine) publishAttempt(res sync.AttemptResult) {
	ev := Event{
		Type:    EventSyncAttempt,
		Time:    time.Now(),
		Attempt: &res,
	}
	if res.Outcome == sync.OutcomeDeadLettered {
		ev.Type = EventDeadLetter
	}
	e.publish(ev)
}

func (e *Engine) publishCycle(summary sync.RunSummary) {
	e.publish(Event{
		Type:  EventSyncCycle,
		Time:  time.Now(),
		Cycle: &summary,
	})
}

// Events returns the engine's event stream. The channel is closed by Stop.
func (e *Engine) Events() <-chan Event {
	return e.events
}
