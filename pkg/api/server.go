// Package api exposes the local operator HTTP API.
//
// The API is a host-facing control surface over a running engine: inspect
// connectivity and queue state, requeue dead letters, trigger a sync, and
// manage the cache. It is not the sync transport; queued requests are
// replayed by the coordinator, never through this server.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/pkg/engine"
)

// Config holds operator API server configuration.
type Config struct {
	// ListenAddr is the address to bind, loopback by default.
	ListenAddr string

	// ReadTimeout, WriteTimeout and IdleTimeout bound connection
	// lifecycles; zero values get server defaults.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// applyDefaults fills zero fields.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:7033"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// Server serves the operator API over a running engine.
type Server struct {
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer creates the operator API server in a stopped state.
// Call Start to begin serving.
func NewServer(cfg Config, eng *engine.Engine) *Server {
	cfg.applyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      NewRouter(eng),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Start serves until Shutdown is called. It blocks; run it on its own
// goroutine.
func (s *Server) Start() error {
	logger.Info("Operator API listening", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully, waiting for in-flight requests up
// to the context deadline. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info("Operator API shutting down")
		err = s.server.Shutdown(ctx)
	})
	return err
}
