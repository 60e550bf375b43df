package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/offsync/pkg/cache"
	"github.com/marmos91/offsync/pkg/config"
	"github.com/marmos91/offsync/pkg/connectivity"
	"github.com/marmos91/offsync/pkg/engine"
	"github.com/marmos91/offsync/pkg/queue"
	"github.com/marmos91/offsync/pkg/sync"
)

// codeTransport replays every request with a fixed status code.
type codeTransport int

func (c codeTransport) Execute(ctx context.Context, r *queue.Request) (*sync.Response, error) {
	return &sync.Response{StatusCode: int(c)}, nil
}

// okProber always reports reachability.
type okProber struct{}

func (okProber) Probe(ctx context.Context) error { return nil }

func newTestServer(t *testing.T, transport sync.Transport) (*httptest.Server, *engine.Engine) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Sync.BaseURL = "https://api.example.com"
	cfg.Sync.Interval = -1
	cfg.Connectivity.DebounceWindow = 10 * time.Millisecond

	eng, err := engine.New(cfg, engine.Options{
		Transport: transport,
		Prober:    okProber{},
	})
	require.NoError(t, err)

	eng.Start(context.Background())
	t.Cleanup(eng.Stop)

	require.Eventually(t, func() bool {
		return eng.ConnectivityState().Status == connectivity.StatusOnline
	}, 2*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(NewRouter(eng))
	t.Cleanup(srv.Close)

	return srv, eng
}

func get(t *testing.T, url string) (int, Response) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func do(t *testing.T, method, url string) (int, Response) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, codeTransport(200))

	code, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestStatusSnapshot(t *testing.T) {
	srv, eng := newTestServer(t, codeTransport(200))

	_, err := eng.Enqueue(context.Background(), queue.Submission{Endpoint: "/a", Method: "POST"})
	require.NoError(t, err)

	code, body := get(t, srv.URL+"/v1/status")
	require.Equal(t, http.StatusOK, code)

	data, ok := body.Data.(map[string]interface{})
	require.True(t, ok)

	conn := data["connectivity"].(map[string]interface{})
	assert.Equal(t, "online", conn["status"])

	queueStats := data["queue"].(map[string]interface{})
	assert.Equal(t, float64(1), queueStats["pending"])
}

func TestQueueEndpoints(t *testing.T) {
	srv, eng := newTestServer(t, codeTransport(400))
	ctx := context.Background()

	r, err := eng.Enqueue(ctx, queue.Submission{Endpoint: "/rejected", Method: "POST"})
	require.NoError(t, err)

	// Pending before the sync
	code, body := get(t, srv.URL+"/v1/queue/pending")
	require.Equal(t, http.StatusOK, code)
	pending := body.Data.([]interface{})
	require.Len(t, pending, 1)

	// A 400 dead-letters on the first attempt
	code, _ = do(t, http.MethodPost, srv.URL+"/v1/sync")
	require.Equal(t, http.StatusOK, code)

	code, body = get(t, srv.URL+"/v1/queue/deadletters")
	require.Equal(t, http.StatusOK, code)
	dead := body.Data.([]interface{})
	require.Len(t, dead, 1)
	entry := dead[0].(map[string]interface{})
	assert.Equal(t, r.ID.String(), entry["id"])

	// Requeue revives it
	code, body = do(t, http.MethodPost, srv.URL+"/v1/queue/deadletters/"+r.ID.String()+"/requeue")
	require.Equal(t, http.StatusOK, code)
	revived := body.Data.(map[string]interface{})
	assert.Equal(t, "pending", revived["status"])

	code, body = get(t, srv.URL+"/v1/queue/pending")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body.Data.([]interface{}), 1)
}

func TestRequeueErrors(t *testing.T) {
	srv, _ := newTestServer(t, codeTransport(200))

	code, body := do(t, http.MethodPost, srv.URL+"/v1/queue/deadletters/not-a-uuid/requeue")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "error", body.Status)

	code, _ = do(t, http.MethodPost,
		srv.URL+"/v1/queue/deadletters/00000000-0000-0000-0000-000000000001/requeue")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSyncEndpoint(t *testing.T) {
	srv, eng := newTestServer(t, codeTransport(200))
	ctx := context.Background()

	_, err := eng.Enqueue(ctx, queue.Submission{Endpoint: "/a", Method: "POST"})
	require.NoError(t, err)

	code, body := do(t, http.MethodPost, srv.URL+"/v1/sync")
	require.Equal(t, http.StatusOK, code)

	data := body.Data.(map[string]interface{})
	assert.Equal(t, "manual", data["trigger"])
	assert.Equal(t, float64(1), data["completed"])
}

func TestCacheEndpoints(t *testing.T) {
	srv, eng := newTestServer(t, codeTransport(200))
	ctx := context.Background()

	require.NoError(t, eng.Cache().Put(ctx, "k", []byte("value"), cache.PutOptions{}))

	code, body := get(t, srv.URL+"/v1/cache/stats")
	require.Equal(t, http.StatusOK, code)
	stats := body.Data.(map[string]interface{})
	assert.Equal(t, float64(1), stats["entries"])

	code, _ = do(t, http.MethodDelete, srv.URL+"/v1/cache")
	require.Equal(t, http.StatusOK, code)

	code, body = get(t, srv.URL+"/v1/cache/stats")
	require.Equal(t, http.StatusOK, code)
	stats = body.Data.(map[string]interface{})
	assert.Equal(t, float64(0), stats["entries"])
}

func TestMetricsDisabledReturns404(t *testing.T) {
	srv, _ := newTestServer(t, codeTransport(200))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	// Metrics registry may have been enabled by another test in the
	// process; accept either outcome but require a well-formed response.
	assert.Contains(t, []int{http.StatusOK, http.StatusNotFound}, resp.StatusCode)
}
