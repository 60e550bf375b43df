package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/pkg/engine"
	"github.com/marmos91/offsync/pkg/metrics"
)

// NewRouter creates the chi router with all middleware and routes.
//
// Routes:
//   - GET    /health - Liveness probe
//   - GET    /v1/status - Connectivity, queue and cache snapshot
//   - GET    /v1/queue/pending - Live requests in dispatch order
//   - GET    /v1/queue/deadletters - Retained dead letters
//   - POST   /v1/queue/deadletters/{id}/requeue - Revive a dead letter
//   - POST   /v1/sync - Trigger a drain cycle (joins an in-flight one)
//   - GET    /v1/cache/stats - Cache utilization
//   - DELETE /v1/cache - Clear the cache
//   - GET    /metrics - Prometheus metrics (404 when disabled)
func NewRouter(eng *engine.Engine) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	h := newHandler(eng)

	r.Get("/health", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", h.status)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/pending", h.listPending)
			r.Get("/deadletters", h.listDeadLetters)
			r.Post("/deadletters/{id}/requeue", h.requeue)
		})

		r.Post("/sync", h.syncNow)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.cacheStats)
			r.Delete("/", h.cacheClear)
		})
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		reg := metrics.GetRegistry()
		if reg == nil {
			http.NotFound(w, req)
			return
		}
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(w, req)
	})

	return r
}

// requestLogger logs each request with its ID, status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug("API request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}
