// Package webserver exposes the arena over a JSON HTTP API: running battles,
// browsing stored battles and reading the leaderboard.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ahrav/go-arena/internal/ports"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New creates a server that runs battles with runner and persists them in store.
func New(cfg Config, runner BattleRunner, store ports.BattleStore, roster ports.CandidateRoster) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8000"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	mux := http.NewServeMux()
	registerRoutes(mux, NewHandlers(runner, store, roster, cfg.Logger), cfg.Metrics)

	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           CORSMiddleware(mux, cfg.AllowedOrigins...),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logger.Info("HTTP server starting", "address", s.srv.Addr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "error", err)
		}
	}()

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	<-done
	return nil
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
