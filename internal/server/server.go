// Package server exposes the HTTP API: hybrid query, rerank, health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rezkaaufar/hybrid-search-service/internal/config"
	"github.com/rezkaaufar/hybrid-search-service/internal/rerank"
	"github.com/rezkaaufar/hybrid-search-service/internal/search"
)

// Deps are the collaborators the handlers need.
type Deps struct {
	Executor *search.Executor
	Gate     *rerank.Gate
	Config   *config.Config
}

// Server manages the HTTP server and routes.
type Server struct {
	deps     Deps
	router   *http.ServeMux
	server   *http.Server
	validate *validator.Validate
}

// New creates the HTTP server with routes and middleware wired.
func New(deps Deps) *Server {
	s := &Server{
		deps:     deps,
		validate: validator.New(),
	}
	s.router = s.setupRoutes()

	timeout := deps.Config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port),
		Handler:      s.withMiddleware(s.router),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving requests until Shutdown or a listen failure.
func (s *Server) Start() error {
	slog.Info("http_server_starting", slog.String("address", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("http_server_stopping")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
