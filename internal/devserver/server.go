// Package devserver is a local stand-in for the Hummingbird backend. It
// serves the log stream and recommendation endpoints the widget talks to,
// emitting simulated progress logs and a catalog-backed product list.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hummingbird-labs/hummingbird/internal/config"
	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
	"github.com/hummingbird-labs/hummingbird/internal/products"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Server is the development backend.
type Server struct {
	cfg      config.DevServerConfig
	catalog  *Catalog
	limiter  *RateLimiter
	access   *AccessLogger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// streams tracks live stream handlers; ctx stops them on Close.
	mu      sync.Mutex
	closed  bool
	streams sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets the logger. Default is logging.DevServer().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics enables instrumentation and exposes g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithCatalog sets the catalog instead of loading cfg.Catalog.
func WithCatalog(c *Catalog) Option {
	return func(s *Server) {
		s.catalog = c
	}
}

// New creates a development backend. Call Close when done.
func New(cfg config.DevServerConfig, opts ...Option) (*Server, error) {
	s := &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The widget is served from a different origin during development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.DevServer()
	}
	if s.catalog == nil {
		c, err := NewCatalog(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		s.catalog = c
	}

	rl := DefaultRateLimitConfig()
	if cfg.RequestsPerSecond > 0 {
		rl.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		rl.BurstSize = cfg.Burst
	}
	s.limiter = NewRateLimiter(rl, s.metrics)

	al := DefaultAccessLogConfig()
	al.Path = cfg.AccessLog
	s.access = NewAccessLogger(al)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Catalog returns the served catalog.
func (s *Server) Catalog() *Catalog {
	return s.catalog
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.access.Middleware)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/ws/logs/{sessionID}", s.handleStream)
		r.Get("/api/v1/products/{sessionID}", s.handleProducts)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Run listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
// The catalog file, when configured, is watched and reloaded for the duration.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.Catalog != "" {
		w, err := NewCatalogWatcher(s.catalog, s.cfg.Catalog, s.logger, nil)
		if err != nil {
			s.logger.Warn("Catalog hot reload disabled", "path", s.cfg.Catalog, "error", err)
		} else {
			w.Start()
			defer w.Close()
		}
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Development backend listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down development backend")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	<-errCh
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close stops all live streams and background work. It is idempotent.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		s.streams.Wait()
		s.limiter.Close()
		if err := s.access.Close(); err != nil {
			s.logger.Debug("Failed to close access log", "error", err)
		}
	})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	logging.WithSession(s.logger, sessionID).Debug("Serving recommendations")

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(products.Response{Products: s.catalog.Items()}); err != nil {
		s.logger.Debug("Failed to write products response", "error", err)
	}
}

// trackStream registers a stream handler. It returns false once Close has started.
func (s *Server) trackStream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.streams.Add(1)
	return true
}
