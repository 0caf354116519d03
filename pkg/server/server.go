package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/config"
	"mercator-hq/promptcanary/pkg/scoring"
	"mercator-hq/promptcanary/pkg/security/auth"
	tlsconfig "mercator-hq/promptcanary/pkg/security/tls"
	"mercator-hq/promptcanary/pkg/telemetry/health"
	"mercator-hq/promptcanary/pkg/telemetry/metrics"
	"mercator-hq/promptcanary/pkg/telemetry/tracing"
)

// Deps are the components the HTTP surface is built on. Only Controller is
// required; nil telemetry components disable the matching endpoints and
// middleware.
type Deps struct {
	Controller *canary.Controller

	// Pool and Scorers back the /score endpoint. Without a pool the
	// endpoint answers 501.
	Pool    *scoring.Pool
	Scorers []scoring.Scorer

	Health  *health.Checker
	Version health.VersionInfo

	Metrics     *metrics.Collector
	MetricsPath string

	Tracer *tracing.Tracer
	Logger *slog.Logger
}

// Server is the HTTP/JSON API of the canary controller.
type Server struct {
	config       *config.ServerConfig
	deps         Deps
	logger       *slog.Logger
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// NewServer creates a new API server.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = config.DefaultMetricsPath
	}
	return &Server{
		config:       cfg,
		deps:         deps,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}
}

// Start listens on the configured address and blocks until ctx is
// cancelled, Stop is called, or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	tlsCfg, reloader, err := tlsconfig.ServerConfig(&s.config.TLS)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to configure TLS: %w", err)
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	if tlsCfg != nil {
		if err := reloader.Start(ctx); err != nil {
			ln.Close()
			s.mu.Unlock()
			return fmt.Errorf("failed to start certificate reloader: %w", err)
		}
		ln = tls.NewListener(ln, tlsCfg)
	}

	s.httpServer = &http.Server{
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "address", ln.Addr().String(), "tls", tlsCfg != nil)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown gracefully shuts down the server, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("api server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	api := &api{
		ctrl:    s.deps.Controller,
		pool:    s.deps.Pool,
		scorers: s.deps.Scorers,
		metrics: s.deps.Metrics,
		logger:  s.logger,
	}
	api.register(mux)

	if s.deps.Health != nil {
		health.Register(mux, s.deps.Health, s.deps.Version)
	}
	if s.deps.Metrics != nil {
		mux.Handle("GET "+s.deps.MetricsPath, s.deps.Metrics.Handler())
	}

	// Innermost first. MetricsMiddleware must wrap the mux directly to see
	// the matched pattern.
	var handler http.Handler = mux
	if s.deps.Metrics != nil {
		handler = MetricsMiddleware(s.deps.Metrics)(handler)
	}
	if s.config.Auth.Enabled() {
		handler = s.authMiddleware().Handle(handler)
	}
	if s.deps.Tracer != nil {
		handler = s.deps.Tracer.HTTPMiddleware(handler)
	}
	handler = LoggingMiddleware(s.logger)(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(s.logger)(handler)

	return handler
}

// authMiddleware guards the /v1 API. Health checks and metrics scrapes stay
// open.
func (s *Server) authMiddleware() *auth.Middleware {
	return auth.NewMiddleware(auth.NewValidator(s.config.Auth.Keys), auth.MiddlewareOptions{
		Exempt: func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/v1/")
		},
		OnError: func(w http.ResponseWriter, statusCode int, message string) {
			errType := ErrorTypeAuthentication
			if statusCode == http.StatusForbidden {
				errType = ErrorTypePermission
			}
			writeError(w, statusCode, errType, message)
		},
		Logger: s.logger,
	})
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the address the server is listening on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}
