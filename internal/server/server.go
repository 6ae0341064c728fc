// Package server hosts the HTTP API shared by the pipeline stages: health,
// funding reads, configuration management, and statistics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/server/handler"
	"github.com/py361828925-design/arb-bot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter is optional; when set, requests are limited per client IP.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers skip their routes, so single-stage processes only expose what
// they actually run.
type Handlers struct {
	Health  *handler.HealthHandler
	Funding *handler.FundingHandler
	Config  *handler.ConfigHandler
	Stats   *handler.StatsHandler
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (CORS, logging, auth, rate limit) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)
	}

	if handlers.Funding != nil {
		mux.HandleFunc("GET /funding/{venue}", handlers.Funding.GetFunding)
	}

	if handlers.Config != nil {
		mux.HandleFunc("GET /config/current", handlers.Config.GetCurrent)
		mux.HandleFunc("PUT /config/current", handlers.Config.UpdateCurrent)
		mux.HandleFunc("GET /config/audit", handlers.Config.ListAudit)
	}

	if handlers.Stats != nil {
		mux.HandleFunc("GET /stats/dynamic", handlers.Stats.GetDynamic)
		mux.HandleFunc("GET /stats/static", handlers.Stats.GetStatic)
		mux.HandleFunc("GET /stats/static/list", handlers.Stats.ListStatic)
		mux.HandleFunc("POST /stats/snapshot", handlers.Stats.CreateSnapshot)
		mux.HandleFunc("GET /events/recent", handlers.Stats.RecentEvents)
		mux.HandleFunc("GET /positions/open", handlers.Stats.OpenPositions)
	}

	var h http.Handler = mux

	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
