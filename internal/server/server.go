// Package server provides the HTTP API for schemarag.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/schemarag/internal/config"
	"github.com/hyperjump/schemarag/internal/pipeline"
	"go.uber.org/zap"
)

// Server is the HTTP server for the schemarag API.
type Server struct {
	session *pipeline.Session
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server answering questions through session.
func NewServer(session *pipeline.Session, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		session: session,
		config:  cfg,
		logger:  logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/ask/xlsx", s.handleExport)
		r.Post("/retrieve", s.handleRetrieve)
		r.Get("/tables", s.handleListTables)
		r.Get("/tables/{name}", s.handleGetTable)
		r.Get("/history", s.handleHistory)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// requestTimeout leaves room for generation plus execution.
func (s *Server) requestTimeout() time.Duration {
	timeout := 60 * time.Second
	if s.config != nil {
		if t := s.config.Generation.Timeout + s.config.Database.Timeout; t > timeout {
			timeout = t
		}
	}
	return timeout
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
