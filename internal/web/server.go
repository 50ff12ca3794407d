// Package web wires the HTTP API: session lifecycle, frame submission,
// enrollment, verification, and the websocket frame stream.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rouzd/facegate/internal/authsession"
	"github.com/rouzd/facegate/internal/config"
	"github.com/rouzd/facegate/internal/database"
	"github.com/rouzd/facegate/internal/frame"
	"github.com/rouzd/facegate/internal/recognizer"
	"github.com/rouzd/facegate/internal/token"
	"github.com/rouzd/facegate/internal/web/middleware"
)

// Dependencies collects everything the handlers need. Issuer and AuditReader
// are optional.
type Dependencies struct {
	Store       *authsession.Store
	Users       database.UserReader
	UserWriter  database.UserWriter
	Audit       database.AuditLog
	AuditReader database.AuditReader
	Decoder     *frame.Decoder
	Matcher     recognizer.Matcher
	Issuer      *token.Issuer
}

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	store      *authsession.Store
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		router: r,
		store:  deps.Store,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS())
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes(deps)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for frame streams
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	// Stop the idle session reaper
	if s.store != nil {
		s.store.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
