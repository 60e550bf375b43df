package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/internal/telemetry"
	"github.com/marmos91/offsync/pkg/connectivity"
	"github.com/marmos91/offsync/pkg/queue"
)

// Configuration defaults
const (
	// DefaultInterval is the periodic drain period. The timer is a safety
	// net for requests whose backoff deadline passed while connectivity
	// stayed stable (no transition to trigger on).
	DefaultInterval = 5 * time.Minute

	// DefaultAttemptTimeout bounds each individual replay attempt.
	DefaultAttemptTimeout = 30 * time.Second
)

// Config holds SyncCoordinator configuration.
type Config struct {
	// Interval is the periodic drain period (0 = DefaultInterval,
	// negative disables the timer).
	Interval time.Duration

	// AttemptTimeout bounds each replay attempt (0 = default).
	AttemptTimeout time.Duration
}

// ConnectivitySource is the slice of the connectivity monitor the
// coordinator needs. *connectivity.Monitor satisfies it.
type ConnectivitySource interface {
	CurrentState() connectivity.State
	Subscribe(func(connectivity.State)) connectivity.Subscription
}

// Options carries optional Coordinator collaborators.
type Options struct {
	// Metrics receives cycle and attempt observations. Optional.
	Metrics Metrics

	// OnAttempt is invoked after each replay attempt. Optional; must not
	// block, it runs on the cycle goroutine.
	OnAttempt func(AttemptResult)

	// OnCycle is invoked after each finished cycle. Same constraints.
	OnCycle func(RunSummary)
}

// Coordinator drains the queue when connectivity allows.
type Coordinator struct {
	cfg       Config
	queue     *queue.Queue
	transport Transport
	conn      ConnectivitySource
	metrics   Metrics
	onAttempt func(AttemptResult)
	onCycle   func(RunSummary)
	clock     func() time.Time

	mu      stdsync.Mutex
	running bool
	done    chan struct{} // closed when the in-flight cycle ends
	last    *RunSummary

	trigger chan Trigger
	connSub connectivity.Subscription
	cancel  context.CancelFunc
	wg      stdsync.WaitGroup
}

// NewCoordinator creates a coordinator. It does nothing until Start is
// called; SyncNow works without Start for one-shot use.
func NewCoordinator(q *queue.Queue, transport Transport, conn ConnectivitySource, cfg Config, opts Options) *Coordinator {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}

	return &Coordinator{
		cfg:       cfg,
		queue:     q,
		transport: transport,
		conn:      conn,
		metrics:   opts.Metrics,
		onAttempt: opts.OnAttempt,
		onCycle:   opts.OnCycle,
		clock:     time.Now,
		trigger:   make(chan Trigger, 1),
	}
}

// Start subscribes to connectivity transitions and launches the trigger
// loop. Stop must be called to release it.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	// The monitor calls handlers on its own goroutine and requires them
	// not to block, so the trigger is a dropped-if-busy signal. A cycle
	// is already draining everything when the channel is full.
	c.connSub = c.conn.Subscribe(func(state connectivity.State) {
		if state.Status != connectivity.StatusOnline {
			return
		}
		select {
		case c.trigger <- TriggerConnectivity:
		default:
		}
	})

	logger.Info("Sync coordinator started",
		"interval", c.cfg.Interval, "attempt_timeout", c.cfg.AttemptTimeout)

	c.wg.Add(1)
	go c.run(ctx)
}

// Stop cancels the connectivity subscription and waits for the trigger
// loop and any in-flight cycle to finish.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.connSub.Cancel()
	c.wg.Wait()
}

// SyncNow starts a drain cycle, or joins the one already running. It
// returns the cycle's summary once it finishes.
func (c *Coordinator) SyncNow(ctx context.Context) (RunSummary, error) {
	return c.runCycle(ctx, TriggerManual)
}

// LastSummary returns the most recent cycle summary, or nil before the
// first cycle.
func (c *Coordinator) LastSummary() *RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last == nil {
		return nil
	}
	out := *c.last
	return &out
}

// run is the trigger loop: it serializes timer and connectivity triggers
// into cycles.
func (c *Coordinator) run(ctx context.Context) {
	defer c.wg.Done()

	var tick <-chan time.Time
	if c.cfg.Interval > 0 {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case trig := <-c.trigger:
			_, _ = c.runCycle(ctx, trig)
		case <-tick:
			_, _ = c.runCycle(ctx, TriggerTimer)
		}
	}
}

// runCycle enforces single-flight: the first caller owns the cycle, later
// callers block until it finishes and receive the same summary.
func (c *Coordinator) runCycle(ctx context.Context, trigger Trigger) (RunSummary, error) {
	c.mu.Lock()
	if c.running {
		done := c.done
		c.mu.Unlock()

		select {
		case <-done:
			c.mu.Lock()
			summary := *c.last
			c.mu.Unlock()
			return summary, nil
		case <-ctx.Done():
			return RunSummary{}, ctx.Err()
		}
	}
	c.running = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	summary := c.drain(ctx, trigger)

	c.mu.Lock()
	c.last = &summary
	c.running = false
	close(c.done)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordCycle(string(trigger), summary.Duration)
	}
	if c.onCycle != nil {
		c.onCycle(summary)
	}

	return summary, nil
}

// drain replays eligible requests until the queue is empty, connectivity
// drops, or the context is cancelled.
func (c *Coordinator) drain(ctx context.Context, trigger Trigger) RunSummary {
	summary := RunSummary{
		CycleID:   uuid.New(),
		Trigger:   trigger,
		StartedAt: c.clock(),
	}

	ctx = logger.WithContext(ctx, &logger.LogContext{
		CycleID: summary.CycleID.String(),
		Trigger: string(trigger),
	})

	ctx, span := telemetry.StartSpan(ctx, "sync.cycle",
		attribute.String(telemetry.AttrCycleID, summary.CycleID.String()),
		attribute.String(telemetry.AttrTrigger, string(trigger)))
	defer func() {
		span.SetAttributes(
			attribute.Int("sync.attempted", summary.Attempted),
			attribute.Int("sync.completed", summary.Completed),
			attribute.Bool("sync.aborted", summary.Aborted))
		telemetry.EndSpan(span, nil)
	}()

	logger.InfoCtx(ctx, "Sync cycle started")

	for {
		if err := ctx.Err(); err != nil {
			summary.Aborted = true
			break
		}

		// Connectivity is re-checked before every attempt: draining into
		// a dead link just burns retry budget.
		if c.conn.CurrentState().Status != connectivity.StatusOnline {
			summary.Aborted = true
			logger.WarnCtx(ctx, "Sync cycle aborted, connectivity lost")
			break
		}

		req, err := c.queue.PeekNext(ctx)
		if err != nil {
			if err != queue.ErrEmpty {
				logger.ErrorCtx(ctx, "Sync cycle stopped", "error", err)
				summary.Aborted = true
			}
			break
		}

		result := c.attempt(ctx, req)
		summary.Attempted++
		switch result.Outcome {
		case OutcomeCompleted:
			summary.Completed++
		case OutcomeRetried:
			summary.Retried++
		case OutcomeDeadLettered:
			summary.DeadLettered++
		}

		if c.metrics != nil {
			c.metrics.RecordAttempt(string(result.Outcome))
		}
		if c.onAttempt != nil {
			c.onAttempt(result)
		}
	}

	summary.Duration = c.clock().Sub(summary.StartedAt)

	logger.InfoCtx(ctx, "Sync cycle finished",
		"attempted", summary.Attempted,
		"completed", summary.Completed,
		"retried", summary.Retried,
		"dead_lettered", summary.DeadLettered,
		"aborted", summary.Aborted,
		"duration", summary.Duration)

	return summary
}

// attempt replays one request and applies the outcome to the queue.
func (c *Coordinator) attempt(ctx context.Context, req *queue.Request) AttemptResult {
	ctx = logger.WithRequestID(ctx, req.ID.String())

	result := AttemptResult{RequestID: req.ID, Endpoint: req.Endpoint}

	if err := c.queue.MarkSyncing(ctx, req.ID); err != nil {
		// Lost a race with another mutation; treat as retried so the
		// cycle moves on.
		result.Outcome = OutcomeRetried
		result.Err = err
		return result
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	spanCtx, span := telemetry.StartSpan(attemptCtx, "sync.attempt",
		attribute.String(telemetry.AttrRequestID, req.ID.String()),
		attribute.String(telemetry.AttrEndpoint, req.Endpoint),
		attribute.String(telemetry.AttrMethod, req.Method),
		attribute.Int(telemetry.AttrAttempt, req.RetryCount+1))

	resp, err := c.transport.Execute(spanCtx, req)
	cancel()

	outcome, cause := classify(resp, err)
	result.Outcome = outcome
	result.Err = cause
	if resp != nil {
		result.StatusCode = resp.StatusCode
		span.SetAttributes(attribute.Int(telemetry.AttrHTTPStatus, resp.StatusCode))
	}

	switch outcome {
	case OutcomeCompleted:
		if qerr := c.queue.MarkCompleted(ctx, req.ID); qerr != nil {
			result.Err = qerr
		}
		logger.DebugCtx(ctx, "Request replayed", "status", result.StatusCode)

	case OutcomeDeadLettered:
		if qerr := c.queue.DeadLetter(ctx, req.ID, cause); qerr != nil {
			result.Err = qerr
		}

	case OutcomeRetried:
		// The queue may dead-letter on budget exhaustion; reflect that
		// in the reported outcome.
		if req.RetryCount+1 > req.MaxRetries {
			result.Outcome = OutcomeDeadLettered
		}
		if qerr := c.queue.MarkFailed(ctx, req.ID, cause); qerr != nil {
			result.Err = qerr
		}
		logger.DebugCtx(ctx, "Request attempt failed",
			"status", result.StatusCode, "error", cause)
	}

	span.SetAttributes(attribute.String(telemetry.AttrOutcome, string(result.Outcome)))
	telemetry.EndSpan(span, cause)

	return result
}

// classify maps a transport result to an outcome.
//
// Transport errors and 5xx responses are transient. 4xx responses mean the
// request itself is bad and retrying cannot fix it, with two exceptions
// that are really server-side conditions: 408 (request timeout) and
// 429 (rate limited).
func classify(resp *Response, err error) (Outcome, error) {
	if err != nil {
		return OutcomeRetried, err
	}

	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return OutcomeCompleted, nil

	case code == 408 || code == 429:
		return OutcomeRetried, fmt.Errorf("server busy: %d", code)

	case code >= 400 && code < 500:
		return OutcomeDeadLettered, fmt.Errorf("request rejected: %d", code)

	default:
		return OutcomeRetried, fmt.Errorf("server error: %d", code)
	}
}
