/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/process, /api/processor, /api/periods/*, /api/distributions, /api/preview
  /api/clock, /api/schedule/*
  /api/tokens/*

SECURITY NOTE:
  Only the process policy restricts callers. The token routes mutate the
  development ledger and must not be exposed in front of a real token.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", CallerHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Processing routes
		r.Post("/process", h.Process)
		r.Get("/processor", h.GetProcessor)
		r.Get("/periods/{idx}", h.GetPeriod)
		r.Get("/distributions", h.ListDistributions)
		r.Get("/preview", h.GetPreview)

		// Calendar and schedule routes
		r.Get("/clock", h.GetClock)
		r.Get("/schedule/split", h.GetSplit)

		// Token routes
		r.Route("/tokens", func(r chi.Router) {
			r.Get("/supply", h.GetSupply)
			r.Get("/balances/{address}", h.GetTokenBalance)
			r.Post("/transfers", h.CreateTransfer)
		})
	})

	return r
}
