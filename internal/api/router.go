package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/garagegate/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated monitoring
		r.Get("/health", s.handleHealth)
		r.Get("/door", s.handleGetDoor)

		// WebSocket (auth via token query parameter, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Read-only
			r.Group(func(r chi.Router) {
				r.Use(s.requireScope(auth.ScopeMonitor))
				r.Get("/door/history", s.handleTransitionHistory)
				r.Get("/decisions", s.handleDecisionHistory)
				r.Get("/adapters", s.handleAdapters)
				r.Get("/system", s.handleSystem)
				r.Get("/plates", s.handleListPlates)
			})

			// Door control and plate management
			r.Group(func(r chi.Router) {
				r.Use(s.requireScope(auth.ScopeControl))
				r.Post("/door/{action}", s.handleDoorCommand)
				r.Post("/plates", s.handleCreatePlate)
			})

			r.With(s.requireRoot).Post("/auth/token", s.handleIssueToken)
		})
	})

	return r
}
