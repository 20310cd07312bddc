// Package server provides the HTTP surface of the ReRide fetch proxy.
//
// API requests under /api are served through the deduplicating cached
// fetch of the request cache layer. The cache itself can be inspected and
// invalidated under /cache.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/reride-fetch/internal/config"
	"github.com/vyrodovalexey/reride-fetch/internal/health"
	"github.com/vyrodovalexey/reride-fetch/internal/middleware"
	"github.com/vyrodovalexey/reride-fetch/internal/observability"
	"github.com/vyrodovalexey/reride-fetch/internal/reqcache"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Server is the proxy HTTP server.
type Server struct {
	engine      *gin.Engine
	httpServer  *http.Server
	layer       *reqcache.Layer
	metrics     *observability.Metrics
	rateLimiter *middleware.RateLimiter
	checker     *health.Checker
	logger      observability.Logger
	config      config.ServerConfig
	version     string

	mu      sync.RWMutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables request metrics and the metrics endpoint.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// New creates a server serving layer according to cfg.
func New(cfg *config.Config, layer *reqcache.Layer, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine: gin.New(),
		layer:  layer,
		logger: observability.NopLogger(),
		config: cfg.Server,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.Recovery(s.logger),
	)
	if s.metrics != nil {
		s.engine.Use(middleware.Metrics(s.metrics))
	}

	s.checker = health.NewChecker(s.version)
	s.checker.RegisterCheck("cache", health.CacheCheck(layer.Cache()))
	s.checker.RegisterCheck("upstream", health.BreakerCheck(layer.Client().Breaker()))

	s.setupRoutes(cfg)

	return s
}

func (s *Server) setupRoutes(cfg *config.Config) {
	s.engine.GET("/healthz", s.checker.HealthHandler())
	s.engine.GET("/readyz", s.checker.ReadinessHandler())

	if s.metrics != nil && cfg.Observability.Metrics.Enabled {
		s.engine.GET(cfg.Observability.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	var rateLimit gin.HandlerFunc
	rateLimit, s.rateLimiter = middleware.RateLimitFromConfig(cfg.Server.RateLimit, s.logger)

	api := s.engine.Group("/api", rateLimit)
	api.GET("/*path", s.handleProxy)

	admin := s.engine.Group("/cache")
	admin.GET("/stats", s.handleStats)
	admin.DELETE("/entries", s.handleInvalidate)
	admin.POST("/clear", s.handleClear)
	admin.POST("/cleanup", s.handleCleanup)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on the configured address and serves until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s.engine,
		ReadTimeout:       s.config.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.config.ReadTimeout.Duration(),
		WriteTimeout:      s.config.WriteTimeout.Duration(),
		IdleTimeout:       s.config.IdleTimeout.Duration(),
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", s.config.Address),
		observability.Duration("readTimeout", s.config.ReadTimeout.Duration()),
		observability.Duration("writeTimeout", s.config.WriteTimeout.Duration()),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop shuts the server down gracefully and stops the rate limiter.
func (s *Server) Stop(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ShutdownTimeout returns the configured graceful shutdown timeout.
func (s *Server) ShutdownTimeout() time.Duration {
	if d := s.config.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return config.DefaultShutdownTimeout
}
