package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/rouzd/facegate/internal/web/handlers"
)

func (s *Server) setupRoutes(deps Dependencies) {
	authHandler := handlers.NewAuthHandler(
		s.config,
		deps.Store,
		deps.Users,
		deps.UserWriter,
		deps.Audit,
		deps.Decoder,
		deps.Matcher,
		deps.Issuer,
	)
	usersHandler := handlers.NewUsersHandler(deps.Users, deps.UserWriter, deps.AuditReader)

	// Health check
	s.router.Get("/api/v1/health", handlers.Health(deps.Store))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Enrollment and directory
		r.Post("/users", usersHandler.Register)
		r.Get("/users", usersHandler.List)
		r.Get("/users/{username}/attempts", usersHandler.Attempts)

		// Progressive authentication sessions
		r.Post("/auth/sessions", authHandler.StartSession)
		r.Post("/auth/sessions/{id}/frames", authHandler.SubmitFrame)
		r.Get("/auth/sessions/{id}/stream", authHandler.Stream)
		r.Delete("/auth/sessions/{id}", authHandler.EndSession)

		// Single-shot verification
		r.Post("/auth/verify", authHandler.Verify)
	})
}
