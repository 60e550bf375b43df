package sync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/offsync/pkg/connectivity"
	"github.com/marmos91/offsync/pkg/queue"
	"github.com/marmos91/offsync/pkg/storage/memory"
)

// fakeConn is a manually driven ConnectivitySource.
type fakeConn struct {
	mu    stdsync.Mutex
	state connectivity.State
	subs  []func(connectivity.State)
}

func newFakeConn(status connectivity.Status) *fakeConn {
	return &fakeConn{state: connectivity.State{Status: status}}
}

func (f *fakeConn) CurrentState() connectivity.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Subscribe(h func(connectivity.State)) connectivity.Subscription {
	f.mu.Lock()
	f.subs = append(f.subs, h)
	f.mu.Unlock()
	return connectivity.Subscription{}
}

func (f *fakeConn) set(status connectivity.Status) {
	f.mu.Lock()
	f.state = connectivity.State{Status: status, ObservedAt: time.Now()}
	subs := append([]func(connectivity.State){}, f.subs...)
	state := f.state
	f.mu.Unlock()

	for _, h := range subs {
		h(state)
	}
}

// transportFunc adapts a function to the Transport interface.
type transportFunc func(ctx context.Context, r *queue.Request) (*Response, error)

func (f transportFunc) Execute(ctx context.Context, r *queue.Request) (*Response, error) {
	return f(ctx, r)
}

func respondWith(code int) transportFunc {
	return func(ctx context.Context, r *queue.Request) (*Response, error) {
		return &Response{StatusCode: code}, nil
	}
}

func newTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	backing := memory.New()
	t.Cleanup(func() { _ = backing.Close() })

	q, err := queue.New(backing, queue.Config{}, nil)
	require.NoError(t, err)
	return q
}

func enqueue(t *testing.T, q *queue.Queue, endpoint string) *queue.Request {
	t.Helper()
	r, err := q.Enqueue(context.Background(), queue.Submission{
		Endpoint: endpoint,
		Method:   "POST",
		Body:     []byte(`{}`),
	})
	require.NoError(t, err)
	return r
}

func TestSyncNowDrainsInOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	enqueue(t, q, "/r1")
	enqueue(t, q, "/r2")
	enqueue(t, q, "/r3")

	var mu stdsync.Mutex
	var seen []string
	tr := transportFunc(func(ctx context.Context, r *queue.Request) (*Response, error) {
		mu.Lock()
		seen = append(seen, r.Endpoint)
		mu.Unlock()
		return &Response{StatusCode: 200}, nil
	})

	c := NewCoordinator(q, tr, newFakeConn(connectivity.StatusOnline), Config{}, Options{})

	summary, err := c.SyncNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"/r1", "/r2", "/r3"}, seen)
	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 3, summary.Completed)
	assert.False(t, summary.Aborted)
	assert.Equal(t, TriggerManual, summary.Trigger)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "each request must be delivered exactly once")
}

func TestServerErrorSchedulesRetry(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	r := enqueue(t, q, "/flaky")

	var results []AttemptResult
	c := NewCoordinator(q, respondWith(503), newFakeConn(connectivity.StatusOnline), Config{}, Options{
		OnAttempt: func(res AttemptResult) { results = append(results, res) },
	})

	summary, err := c.SyncNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Retried)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeRetried, results[0].Outcome)
	assert.Equal(t, 503, results[0].StatusCode)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, r.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.False(t, pending[0].NextAttemptAt.IsZero(), "retry must be scheduled with backoff")
}

func TestClientErrorDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	r := enqueue(t, q, "/bad")

	c := NewCoordinator(q, respondWith(400), newFakeConn(connectivity.StatusOnline), Config{}, Options{})

	summary, err := c.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.DeadLettered)

	dead, err := q.ListDeadLettered(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, r.ID, dead[0].ID)
	assert.Contains(t, dead[0].LastError, "400")
}

func TestRetryableClientErrorsAreNotDeadLettered(t *testing.T) {
	ctx := context.Background()

	for _, code := range []int{408, 429} {
		q := newTestQueue(t)
		enqueue(t, q, "/busy")

		c := NewCoordinator(q, respondWith(code), newFakeConn(connectivity.StatusOnline), Config{}, Options{})
		summary, err := c.SyncNow(ctx)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Retried, "status %d must retry", code)
		assert.Zero(t, summary.DeadLettered, "status %d must not dead-letter", code)
	}
}

func TestTransportErrorRetries(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	enqueue(t, q, "/unreachable")

	tr := transportFunc(func(ctx context.Context, r *queue.Request) (*Response, error) {
		return nil, errors.New("connection refused")
	})

	c := NewCoordinator(q, tr, newFakeConn(connectivity.StatusOnline), Config{}, Options{})
	summary, err := c.SyncNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Retried)
}

func TestOfflineCycleAbortsWithoutAttempts(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	enqueue(t, q, "/r1")

	c := NewCoordinator(q, respondWith(200), newFakeConn(connectivity.StatusOffline), Config{}, Options{})

	summary, err := c.SyncNow(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Aborted)
	assert.Zero(t, summary.Attempted)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "aborted cycle must leave requests queued")
}

func TestConnectivityLossMidCycleAborts(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	enqueue(t, q, "/r1")
	enqueue(t, q, "/r2")
	enqueue(t, q, "/r3")

	conn := newFakeConn(connectivity.StatusOnline)
	tr := transportFunc(func(ctx context.Context, r *queue.Request) (*Response, error) {
		// Link drops after the first delivery
		conn.set(connectivity.StatusOffline)
		return &Response{StatusCode: 200}, nil
	})

	c := NewCoordinator(q, tr, conn, Config{}, Options{})
	summary, err := c.SyncNow(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, summary.Attempted)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestConcurrentSyncNowJoinsInFlightCycle(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	enqueue(t, q, "/slow")

	started := make(chan struct{})
	release := make(chan struct{})
	var once stdsync.Once
	tr := transportFunc(func(ctx context.Context, r *queue.Request) (*Response, error) {
		once.Do(func() { close(started) })
		<-release
		return &Response{StatusCode: 200}, nil
	})

	c := NewCoordinator(q, tr, newFakeConn(connectivity.StatusOnline), Config{}, Options{})

	type result struct {
		summary RunSummary
		err     error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		s, err := c.SyncNow(ctx)
		first <- result{s, err}
	}()

	<-started
	go func() {
		s, err := c.SyncNow(ctx)
		second <- result{s, err}
	}()

	// Give the second caller time to join, then let the cycle finish
	time.Sleep(50 * time.Millisecond)
	close(release)

	r1 := <-first
	r2 := <-second
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)

	assert.Equal(t, r1.summary.CycleID, r2.summary.CycleID,
		"joining caller must receive the in-flight cycle's summary")
	assert.Equal(t, 1, r1.summary.Attempted, "single request must be attempted once, not twice")
}

func TestBudgetExhaustionReportedAsDeadLettered(t *testing.T) {
	ctx := context.Background()
	backing := memory.New()
	defer func() { _ = backing.Close() }()

	q, err := queue.New(backing, queue.Config{
		MaxRetries: 1,
		Backoff:    queue.NewBackoffPolicy(time.Nanosecond, time.Nanosecond, 0),
	}, nil)
	require.NoError(t, err)

	enqueue(t, q, "/doomed")

	var outcomes []Outcome
	c := NewCoordinator(q, respondWith(503), newFakeConn(connectivity.StatusOnline), Config{}, Options{
		OnAttempt: func(res AttemptResult) { outcomes = append(outcomes, res.Outcome) },
	})

	// First cycle retries; the nanosecond backoff elapses immediately, so
	// the next cycle's failure exhausts the budget.
	_, err = c.SyncNow(ctx)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = c.SyncNow(ctx)
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, OutcomeRetried, outcomes[0])
	assert.Equal(t, OutcomeDeadLettered, outcomes[1])

	dead, listErr := q.ListDeadLettered(ctx)
	require.NoError(t, listErr)
	assert.Len(t, dead, 1)
}

func TestOnlineTransitionTriggersCycle(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, "/r1")

	conn := newFakeConn(connectivity.StatusOffline)
	c := NewCoordinator(q, respondWith(200), conn, Config{Interval: -1}, Options{})

	c.Start(context.Background())
	defer c.Stop()

	conn.set(connectivity.StatusOnline)

	require.Eventually(t, func() bool {
		pending, err := q.ListPending(context.Background())
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond, "going online must drain the queue")

	require.Eventually(t, func() bool {
		s := c.LastSummary()
		return s != nil && s.Trigger == TriggerConnectivity
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTimerTriggersCycle(t *testing.T) {
	q := newTestQueue(t)
	enqueue(t, q, "/r1")

	c := NewCoordinator(q, respondWith(200), newFakeConn(connectivity.StatusOnline),
		Config{Interval: 20 * time.Millisecond}, Options{})

	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool {
		s := c.LastSummary()
		return s != nil && s.Trigger == TriggerTimer && s.Completed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHTTPTransportRoundTrip(t *testing.T) {
	var gotMethod, gotPath, gotHeader string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Request-Source")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(srv.URL)
	resp, err := tr.Execute(context.Background(), &queue.Request{
		Endpoint: "/v1/items",
		Method:   "PUT",
		Headers:  map[string]string{"X-Request-Source": "offline"},
		Body:     []byte(`{"a":1}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "PUT", gotMethod)
	assert.Equal(t, "/v1/items", gotPath)
	assert.Equal(t, "offline", gotHeader)
	assert.Equal(t, []byte(`{"a":1}`), gotBody)
}

func TestHTTPTransportAbsoluteEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Base URL points nowhere; the absolute endpoint must win
	tr := NewHTTPTransport("http://127.0.0.1:1")
	resp, err := tr.Execute(context.Background(), &queue.Request{
		Endpoint: srv.URL + "/abs",
		Method:   "GET",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
