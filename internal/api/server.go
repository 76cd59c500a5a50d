package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/adinsight/internal/config"
)

// Server is the ops HTTP server.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates an ops server over h and health. metrics is mounted at
// /metrics when non-nil.
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker, metrics http.Handler) *Server {
	return &Server{
		config:  cfg,
		handler: SetupRoutes(h, health, metrics, cfg.AllowedOrigins),
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.GetHost(), s.config.Port)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		// manual batch runs with ?wait=true hold the connection
		WriteTimeout: 2 * time.Hour,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
