/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/points/*        Balance mutations
  /api/users/*         User directory, balances, transaction history
  /api/leaderboard/*   Ranked top users per category
  /api/categories/*    Category management
  /api/logs/*          Transaction log metadata
  /api/admin/*         Maintenance operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/pointsd: Server startup
*/
package api

import (
	"net/http"

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
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Mutation routes
		r.Route("/points", func(r chi.Router) {
			r.Post("/alter", h.AlterPoints)
			r.Post("/add", h.AddPoints)
			r.Post("/subtract", h.SubtractPoints)
			r.Post("/set", h.SetPoints)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.AddUser)
			r.Delete("/{id}", h.RemoveUser)
			r.Get("/{id}/balance/{category}", h.GetBalance)
			r.Get("/{id}/logs/{category}", h.GetLogs)
		})

		// Leaderboard routes
		r.Get("/leaderboard/{category}", h.GetLeaderboard)

		// Category routes
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Delete("/{slug}", h.DeleteCategory)
		})

		// Log metadata routes
		r.Route("/logs/{id}/meta", func(r chi.Router) {
			r.Post("/", h.AddLogMeta)
			r.Get("/", h.GetLogMeta)
			r.Delete("/", h.DeleteLogMeta)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/regenerate", h.RegenerateLogText)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
