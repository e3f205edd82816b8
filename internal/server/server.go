// Package server exposes the monitor session command surface over HTTP:
// health, session start/stop, and status inspection.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goquant/arbsentinel/internal/server/handler"
	"github.com/goquant/arbsentinel/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port int
}

// Server is the HTTP API server for the signal engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered.
func NewServer(cfg Config, sessions *handler.SessionHandler, symbols *handler.SymbolsHandler, stats *handler.StatsHandler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handler.HealthCheck)

	mux.HandleFunc("GET /v1/sessions", sessions.List)
	mux.HandleFunc("POST /v1/sessions", sessions.Start)
	mux.HandleFunc("GET /v1/sessions/{id}", sessions.Get)
	mux.HandleFunc("PATCH /v1/sessions/{id}", sessions.Update)
	mux.HandleFunc("DELETE /v1/sessions/{id}", sessions.Stop)

	mux.HandleFunc("GET /v1/symbols/{exchange}", symbols.List)
	mux.HandleFunc("GET /v1/stats/{symbol}", stats.Get)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
