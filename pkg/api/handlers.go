package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/pkg/engine"
	"github.com/marmos91/offsync/pkg/queue"
)

// Response is the standard API response wrapper.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// handler carries the engine handle for all endpoints.
type handler struct {
	eng *engine.Engine
}

func newHandler(eng *engine.Engine) *handler {
	return &handler{eng: eng}
}

// writeJSON writes a JSON response with the given status code. Encoding
// goes to a buffer first so an encoding failure can still produce an error
// response before headers are sent.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func okResponse(data interface{}) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

func errorResponse(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     err.Error(),
	})
}

// health implements GET /health.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, okResponse(nil))
}

// statusData is the GET /v1/status payload.
type statusData struct {
	Connectivity connectivityData `json:"connectivity"`
	Queue        queue.Stats      `json:"queue"`
	Cache        cacheStatsData   `json:"cache"`
	LastSync     *lastSyncData    `json:"last_sync,omitempty"`
}

type connectivityData struct {
	Status     string    `json:"status"`
	Transport  string    `json:"transport"`
	ObservedAt time.Time `json:"observed_at"`
}

type cacheStatsData struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	MaxBytes   int64 `json:"max_bytes"`
	MaxEntries int   `json:"max_entries"`
}

type lastSyncData struct {
	CycleID      string        `json:"cycle_id"`
	Trigger      string        `json:"trigger"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Attempted    int           `json:"attempted"`
	Completed    int           `json:"completed"`
	Retried      int           `json:"retried"`
	DeadLettered int           `json:"dead_lettered"`
	Aborted      bool          `json:"aborted"`
}

// status implements GET /v1/status.
func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	conn := h.eng.ConnectivityState()
	cacheStats := h.eng.Cache().Stats()

	data := statusData{
		Connectivity: connectivityData{
			Status:     conn.Status.String(),
			Transport:  conn.Transport.String(),
			ObservedAt: conn.ObservedAt,
		},
		Queue: h.eng.Queue().Stats(),
		Cache: cacheStatsData{
			Entries:    cacheStats.Count,
			TotalBytes: cacheStats.TotalBytes,
			MaxBytes:   cacheStats.MaxBytes,
			MaxEntries: cacheStats.MaxEntries,
		},
	}

	if last := h.eng.LastSyncSummary(); last != nil {
		data.LastSync = &lastSyncData{
			CycleID:      last.CycleID.String(),
			Trigger:      string(last.Trigger),
			StartedAt:    last.StartedAt,
			Duration:     last.Duration,
			Attempted:    last.Attempted,
			Completed:    last.Completed,
			Retried:      last.Retried,
			DeadLettered: last.DeadLettered,
			Aborted:      last.Aborted,
		}
	}

	writeJSON(w, http.StatusOK, okResponse(data))
}

// requestData is the wire form of a queued request. The body is omitted;
// operators inspect metadata, not payloads.
type requestData struct {
	ID            string    `json:"id"`
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	Priority      int       `json:"priority"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	RetryCount    int       `json:"retry_count"`
	MaxRetries    int       `json:"max_retries"`
	NextAttemptAt time.Time `json:"next_attempt_at,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
}

func toRequestData(rs []*queue.Request) []requestData {
	out := make([]requestData, 0, len(rs))
	for _, r := range rs {
		out = append(out, requestData{
			ID:            r.ID.String(),
			Endpoint:      r.Endpoint,
			Method:        r.Method,
			Priority:      r.Priority,
			Status:        string(r.Status),
			CreatedAt:     r.CreatedAt,
			RetryCount:    r.RetryCount,
			MaxRetries:    r.MaxRetries,
			NextAttemptAt: r.NextAttemptAt,
			LastError:     r.LastError,
		})
	}
	return out
}

// listPending implements GET /v1/queue/pending.
func (h *handler) listPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.eng.Queue().ListPending(r.Context())
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(toRequestData(pending)))
}

// listDeadLetters implements GET /v1/queue/deadletters.
func (h *handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	dead, err := h.eng.Queue().ListDeadLettered(r.Context())
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(toRequestData(dead)))
}

// requeue implements POST /v1/queue/deadletters/{id}/requeue.
func (h *handler) requeue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		errorResponse(w, http.StatusBadRequest, errors.New("invalid request id"))
		return
	}

	revived, err := h.eng.Queue().Requeue(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			errorResponse(w, http.StatusNotFound, err)
			return
		}
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(toRequestData([]*queue.Request{revived})[0]))
}

// syncNow implements POST /v1/sync. It blocks until the cycle (possibly an
// in-flight one it joined) finishes.
func (h *handler) syncNow(w http.ResponseWriter, r *http.Request) {
	summary, err := h.eng.SyncNow(r.Context())
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse(lastSyncData{
		CycleID:      summary.CycleID.String(),
		Trigger:      string(summary.Trigger),
		StartedAt:    summary.StartedAt,
		Duration:     summary.Duration,
		Attempted:    summary.Attempted,
		Completed:    summary.Completed,
		Retried:      summary.Retried,
		DeadLettered: summary.DeadLettered,
		Aborted:      summary.Aborted,
	}))
}

// cacheStats implements GET /v1/cache/stats.
func (h *handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.eng.Cache().Stats()
	writeJSON(w, http.StatusOK, okResponse(cacheStatsData{
		Entries:    stats.Count,
		TotalBytes: stats.TotalBytes,
		MaxBytes:   stats.MaxBytes,
		MaxEntries: stats.MaxEntries,
	}))
}

// cacheClear implements DELETE /v1/cache.
func (h *handler) cacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Cache().Clear(r.Context()); err != nil {
		errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse(nil))
}
