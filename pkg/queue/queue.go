package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/pkg/storage"
)

// DefaultMaxRetries bounds retries before dead-lettering when neither the
// queue config nor the submission says otherwise.
const DefaultMaxRetries = 5

// Storage key prefixes. Live requests and dead letters sit under separate
// prefixes so reload and listing never have to filter by status.
const (
	requestPrefix    = "queue/req/"
	deadLetterPrefix = "queue/dead/"
)

// Config holds RequestQueue configuration.
type Config struct {
	// MaxRetries is the default retry budget for submissions that do not
	// set their own (0 = DefaultMaxRetries).
	MaxRetries int

	// Backoff computes retry delays.
	Backoff BackoffPolicy
}

// Queue is a durable, priority-ordered request queue.
type Queue struct {
	cfg     Config
	storage storage.Store
	metrics Metrics
	clock   func() time.Time

	mu      sync.Mutex
	pending map[uuid.UUID]*Request // Pending and Syncing requests
	dead    map[uuid.UUID]*Request
	closed  bool
}

// New creates a Queue backed by the given durable storage and reloads any
// persisted requests. Requests found in the Syncing state were in flight
// when a previous process died; their attempt outcome is unknown, so they
// are reset to Pending and replayed.
func New(store storage.Store, cfg Config, metrics Metrics) (*Queue, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	cfg.Backoff = NewBackoffPolicy(cfg.Backoff.Base, cfg.Backoff.Cap, cfg.Backoff.JitterRatio)

	q := &Queue{
		cfg:     cfg,
		storage: store,
		metrics: metrics,
		clock:   time.Now,
		pending: make(map[uuid.UUID]*Request),
		dead:    make(map[uuid.UUID]*Request),
	}

	if err := q.reload(context.Background()); err != nil {
		return nil, err
	}

	return q, nil
}

// Enqueue accepts a request for eventual delivery. The durable record is
// written before the queue acknowledges: on a *StorageError nothing was
// enqueued and the caller may retry.
func (q *Queue) Enqueue(ctx context.Context, sub Submission) (*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	maxRetries := sub.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.cfg.MaxRetries
	}

	// Copy the mutable submission fields so later caller mutations cannot
	// reach queue-internal state.
	var headers map[string]string
	if sub.Headers != nil {
		headers = make(map[string]string, len(sub.Headers))
		for k, v := range sub.Headers {
			headers[k] = v
		}
	}

	r := &Request{
		ID:         uuid.New(),
		Endpoint:   sub.Endpoint,
		Method:     sub.Method,
		Headers:    headers,
		Body:       append([]byte(nil), sub.Body...),
		Priority:   sub.Priority,
		CreatedAt:  q.clock(),
		Status:     StatusPending,
		MaxRetries: maxRetries,
	}

	if err := q.persistLocked(ctx, r, requestPrefix); err != nil {
		return nil, err
	}

	q.pending[r.ID] = r

	logger.Debug("Request enqueued",
		"id", r.ID,
		"endpoint", r.Endpoint,
		"method", r.Method,
		"priority", r.Priority)

	if q.metrics != nil {
		q.metrics.RecordEnqueue()
	}
	q.recordDepthLocked()

	return r.clone(), nil
}

// PeekNext returns the eligible request that should be dispatched next:
// highest priority first, oldest CreatedAt within a priority. Requests
// backing off or currently Syncing are skipped. Returns ErrEmpty when
// nothing is eligible.
func (q *Queue) PeekNext(ctx context.Context) (*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	now := q.clock()

	var next *Request
	for _, r := range q.pending {
		if !r.eligible(now) {
			continue
		}
		if next == nil || dispatchBefore(r, next) {
			next = r
		}
	}

	if next == nil {
		return nil, ErrEmpty
	}
	return next.clone(), nil
}

// dispatchBefore reports whether a should be dispatched before b.
func dispatchBefore(a, b *Request) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// MarkSyncing transitions a Pending request to Syncing, claiming it for a
// sync cycle. The claim is durable so a crash mid-attempt is detectable.
func (q *Queue) MarkSyncing(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	r, ok := q.pending[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrInvalidTransition
	}

	updated := r.clone()
	updated.Status = StatusSyncing
	if err := q.persistLocked(ctx, updated, requestPrefix); err != nil {
		return err
	}

	r.Status = StatusSyncing
	return nil
}

// MarkCompleted removes an acknowledged request. The durable record is
// deleted; completed requests are not retained.
func (q *Queue) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	r, ok := q.pending[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusSyncing {
		return ErrInvalidTransition
	}

	if err := q.storage.Delete(ctx, requestPrefix+id.String()); err != nil {
		return &StorageError{Op: "delete", ID: id, Err: err}
	}

	delete(q.pending, id)

	logger.Debug("Request completed", "id", id, "endpoint", r.Endpoint)

	if q.metrics != nil {
		q.metrics.RecordCompleted()
	}
	q.recordDepthLocked()

	return nil
}

// MarkFailed records a retryable failure. The retry count is incremented;
// if the budget is exhausted the request dead-letters, otherwise it returns
// to Pending with a backoff deadline.
func (q *Queue) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	r, ok := q.pending[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusSyncing {
		return ErrInvalidTransition
	}

	updated := r.clone()
	updated.RetryCount++
	if cause != nil {
		updated.LastError = cause.Error()
	}

	if updated.RetryCount > updated.MaxRetries {
		return q.deadLetterLocked(ctx, r, updated)
	}

	updated.Status = StatusPending
	updated.NextAttemptAt = q.clock().Add(q.cfg.Backoff.Delay(updated.RetryCount))

	if err := q.persistLocked(ctx, updated, requestPrefix); err != nil {
		return err
	}

	*r = *updated

	logger.Debug("Request failed, will retry",
		"id", id,
		"retry_count", r.RetryCount,
		"max_retries", r.MaxRetries,
		"next_attempt_at", r.NextAttemptAt,
		"error", r.LastError)

	if q.metrics != nil {
		q.metrics.RecordRetry()
	}

	return nil
}

// DeadLetter forces a Syncing request into the dead-letter set regardless
// of its remaining retry budget. Used for failures that retrying cannot
// fix, e.g. a request the server rejected as malformed.
func (q *Queue) DeadLetter(ctx context.Context, id uuid.UUID, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	r, ok := q.pending[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusSyncing {
		return ErrInvalidTransition
	}

	updated := r.clone()
	if cause != nil {
		updated.LastError = cause.Error()
	}

	return q.deadLetterLocked(ctx, r, updated)
}

// deadLetterLocked moves a request from the live prefix to the dead-letter
// prefix. The dead record is written before the live record is removed, so
// a crash between the two leaves a duplicate rather than a loss; reload
// resolves the duplicate in favor of the dead letter. Caller holds q.mu.
func (q *Queue) deadLetterLocked(ctx context.Context, live, updated *Request) error {
	updated.Status = StatusDeadLettered

	if err := q.persistLocked(ctx, updated, deadLetterPrefix); err != nil {
		return err
	}
	if err := q.storage.Delete(ctx, requestPrefix+updated.ID.String()); err != nil {
		return &StorageError{Op: "delete", ID: updated.ID, Err: err}
	}

	delete(q.pending, live.ID)
	q.dead[updated.ID] = updated

	logger.Warn("Request dead-lettered",
		"id", updated.ID,
		"endpoint", updated.Endpoint,
		"retry_count", updated.RetryCount,
		"error", updated.LastError)

	if q.metrics != nil {
		q.metrics.RecordDeadLetter()
	}
	q.recordDepthLocked()

	return nil
}

// Requeue moves a dead letter back into the live queue with a fresh retry
// budget. Intended for operator intervention after the underlying cause is
// fixed.
func (q *Queue) Requeue(ctx context.Context, id uuid.UUID) (*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	d, ok := q.dead[id]
	if !ok {
		return nil, ErrNotFound
	}

	revived := d.clone()
	revived.Status = StatusPending
	revived.RetryCount = 0
	revived.NextAttemptAt = time.Time{}
	revived.LastError = ""

	if err := q.persistLocked(ctx, revived, requestPrefix); err != nil {
		return nil, err
	}
	if err := q.storage.Delete(ctx, deadLetterPrefix+id.String()); err != nil {
		return nil, &StorageError{Op: "delete", ID: id, Err: err}
	}

	delete(q.dead, id)
	q.pending[id] = revived

	logger.Info("Dead letter requeued", "id", id, "endpoint", revived.Endpoint)
	q.recordDepthLocked()

	return revived.clone(), nil
}

// ListPending returns a snapshot of live requests in dispatch order.
// Requests backing off are included; callers that need only eligible
// requests should use PeekNext.
func (q *Queue) ListPending(ctx context.Context) ([]*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	out := make([]*Request, 0, len(q.pending))
	for _, r := range q.pending {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return dispatchBefore(out[i], out[j]) })

	return out, nil
}

// ListDeadLettered returns a snapshot of the dead-letter set, most recent
// enqueue first.
func (q *Queue) ListDeadLettered(ctx context.Context) ([]*Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	out := make([]*Request, 0, len(q.dead))
	for _, r := range q.dead {
		out = append(out, r.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

// Stats returns current queue depths.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var syncing int
	for _, r := range q.pending {
		if r.Status == StatusSyncing {
			syncing++
		}
	}

	return Stats{
		Pending:      len(q.pending) - syncing,
		Syncing:      syncing,
		DeadLettered: len(q.dead),
	}
}

// Close marks the queue closed. It does not close the storage backend,
// which may be shared with other components.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// ============================================================================
// Internals
// ============================================================================

// persistLocked writes the request's durable record under the given prefix.
// Caller holds q.mu.
func (q *Queue) persistLocked(ctx context.Context, r *Request, prefix string) error {
	record, err := json.Marshal(r)
	if err != nil {
		return &StorageError{Op: "persist", ID: r.ID, Err: err}
	}
	if err := q.storage.Set(ctx, prefix+r.ID.String(), record); err != nil {
		return &StorageError{Op: "persist", ID: r.ID, Err: err}
	}
	return nil
}

// reload rebuilds the in-memory index from persisted records.
func (q *Queue) reload(ctx context.Context) error {
	dead, err := q.storage.ListPrefix(ctx, deadLetterPrefix)
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}
	for key, record := range dead {
		r := q.decodeRecord(ctx, key, record)
		if r == nil {
			continue
		}
		q.dead[r.ID] = r
	}

	live, err := q.storage.ListPrefix(ctx, requestPrefix)
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}

	var recovered int
	for key, record := range live {
		r := q.decodeRecord(ctx, key, record)
		if r == nil {
			continue
		}

		// A crash between the dead-letter write and the live-record
		// delete leaves both records; the dead letter wins.
		if _, isDead := q.dead[r.ID]; isDead {
			_ = q.storage.Delete(ctx, key)
			continue
		}

		// In-flight when the previous process died: the outcome of the
		// attempt is unknown, so replay it.
		if r.Status == StatusSyncing {
			r.Status = StatusPending
			if err := q.persistLocked(ctx, r, requestPrefix); err != nil {
				return err
			}
			recovered++
		}

		q.pending[r.ID] = r
	}

	if len(q.pending) > 0 || len(q.dead) > 0 {
		logger.Info("Queue reloaded",
			"pending", len(q.pending),
			"dead_lettered", len(q.dead),
			"recovered_in_flight", recovered)
	}

	q.recordDepthLocked()
	return nil
}

// decodeRecord unmarshals a persisted request, dropping undecodable records
// from storage.
func (q *Queue) decodeRecord(ctx context.Context, key string, record []byte) *Request {
	var r Request
	if err := json.Unmarshal(record, &r); err != nil {
		logger.Warn("Queue: dropping undecodable record", "key", key, "error", err)
		_ = q.storage.Delete(ctx, key)
		return nil
	}
	return &r
}

func (q *Queue) recordDepthLocked() {
	if q.metrics != nil {
		q.metrics.RecordDepth(len(q.pending), len(q.dead))
	}
}
