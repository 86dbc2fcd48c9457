// Package server exposes the ClassLens HTTP API.
//
// Endpoints:
//
//   - POST /api/v1/analyses               — submit a lesson video for analysis
//   - GET  /api/v1/analyses               — list stored analyses, newest first
//   - GET  /api/v1/analyses/{id}          — fetch one stored analysis
//   - GET  /api/v1/analyses/{id}/similar  — similar past lessons by transcript embedding
//   - GET  /api/v1/analyses/{id}/progress — WebSocket stream of analysis progress
//   - GET  /healthz, /readyz              — liveness and readiness probes
//   - GET  /metrics                       — Prometheus scrape endpoint
//
// All responses are JSON. The whole mux is wrapped in the observe middleware
// for per-request metrics and trace propagation.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/classlens/classlens/internal/health"
	"github.com/classlens/classlens/internal/jobs"
	"github.com/classlens/classlens/internal/observe"
	"github.com/classlens/classlens/pkg/resultstore"
)

// shutdownTimeout bounds graceful connection draining on Shutdown.
const shutdownTimeout = 10 * time.Second

// Enqueuer accepts analysis submissions. Both jobs.Queue (Redis-backed) and
// jobs.Inline (in-process) implement it.
type Enqueuer interface {
	EnqueueAnalysis(p jobs.AnalyzePayload) (string, error)
}

// Server is the ClassLens HTTP API server.
type Server struct {
	addr     string
	certFile string
	keyFile  string

	enqueuer Enqueuer
	store    resultstore.Store
	hub      *Hub
	metrics  *observe.Metrics
	health   *health.Handler

	httpServer *http.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithStore serves stored analyses from store. Without it the read endpoints
// answer 503.
func WithStore(store resultstore.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithHub streams progress events from hub. The hub must be the same one
// wired into the analysis task handler as its notifier.
func WithHub(hub *Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithMetrics sets the metrics sink for the HTTP middleware and the progress
// stream gauge.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheckers registers readiness checkers on /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.health = health.New(checkers...) }
}

// WithTLS serves HTTPS with the given certificate pair.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// New creates a server listening on addr once [Server.Start] is called.
func New(addr string, enqueuer Enqueuer, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		enqueuer: enqueuer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Hub returns the progress hub, for wiring into the analysis task handler.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the full route mux wrapped in the observe middleware.
// Exposed for httptest-based tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/analyses", s.handleCreateAnalysis)
	mux.HandleFunc("GET /api/v1/analyses", s.handleListAnalyses)
	mux.HandleFunc("GET /api/v1/analyses/{id}", s.handleGetAnalysis)
	mux.HandleFunc("GET /api/v1/analyses/{id}/similar", s.handleSimilarAnalyses)
	mux.HandleFunc("GET /api/v1/analyses/{id}/progress", s.handleProgressStream)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// Start begins serving. It blocks until the listener fails or [Server.Shutdown]
// is called, in which case it returns nil.
func (s *Server) Start() error {
	scheme := "http"
	if s.certFile != "" {
		scheme = "https"
	}
	slog.Info("http server listening", "addr", s.addr, "scheme", scheme)

	var err error
	if s.certFile != "" {
		err = s.httpServer.ListenAndServeTLS(s.certFile, s.keyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.addr, err)
	}
	return nil
}

// Shutdown drains connections gracefully, waiting at most shutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
