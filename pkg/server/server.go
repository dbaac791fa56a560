// Package server exposes storage units over HTTP.
//
// Every request is routed to the unit of its namespace, taken from the
// X-Namespace header or the ns query parameter, and runs while holding that
// namespace's lock. The X-Actor header names the actor recorded on events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
)

// Request headers
const (
	NamespaceHeader = "X-Namespace"
	ActorHeader     = "X-Actor"
)

// ErrServerClosed is returned by Start after Stop
var ErrServerClosed = errors.New("server closed")

// Config configures the HTTP server
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
}

// DefaultConfig returns the server defaults
func DefaultConfig() Config {
	return Config{
		Address:      ":8787",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		MaxBodyBytes: 10 << 20,
	}
}

// Server serves the docdb HTTP API
type Server struct {
	config   Config
	registry *core.Registry
	logger   core.Logger

	httpServer *http.Server
	listener   net.Listener
	started    time.Time
	closed     atomic.Bool

	requestCount atomic.Int64
	errorCount   atomic.Int64
	activeCount  atomic.Int64
}

// Stats are the server's request counters
type Stats struct {
	Uptime         time.Duration `json:"uptime"`
	RequestCount   int64         `json:"requestCount"`
	ErrorCount     int64         `json:"errorCount"`
	ActiveRequests int64         `json:"activeRequests"`
}

// New creates a server over registry
func New(registry *core.Registry, logger core.Logger, cfg Config) *Server {
	if logger == nil {
		logger = core.NopLogger()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Server{
		config:   cfg,
		registry: registry,
		logger:   logger.With("component", "http"),
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.registerHealthRoutes(mux)
	s.registerDataRoutes(mux)
	s.registerGraphRoutes(mux)
	s.registerEventRoutes(mux)
	s.registerPipelineRoutes(mux)
	s.registerSearchRoutes(mux)

	return s.wrapWithMiddleware(mux)
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}

	s.listener = listener
	s.started = time.Now()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()

	s.logger.Info("listening", "address", listener.Addr().String())
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the listen address once started
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stats returns the request counters
func (s *Server) Stats() Stats {
	var uptime time.Duration
	if !s.started.IsZero() {
		uptime = time.Since(s.started)
	}
	return Stats{
		Uptime:         uptime,
		RequestCount:   s.requestCount.Load(),
		ErrorCount:     s.errorCount.Load(),
		ActiveRequests: s.activeCount.Load(),
	}
}

func (s *Server) registerHealthRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"namespaces": s.registry.Namespaces(),
			"stats":      s.Stats(),
		})
	})
}
