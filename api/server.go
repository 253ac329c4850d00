/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the gateway frontend

ROUTE GROUPS:
  /api/contracts/*      Contract lifecycle operations
  /api/tasks/*          Background task polling
  /api/payments/*       Payment reconciliation hooks
  /api/admin/*          Admin operations

SECURITY NOTE:
  Authentication is handled by the gateway in front of this service; it
  forwards the caller identity as X-User-* headers. The handlers enforce
  capabilities only.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-User-Name", "X-User-Rights"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Contract routes
		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", h.ListContracts)
			r.Post("/", h.CreateContract)
			r.Post("/async", h.CreateContractAsync)
			r.Post("/bulk/approve", h.BulkApprove)
			r.Post("/bulk/counter", h.BulkCounter)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetContract)
				r.Put("/", h.UpdateContract)
				r.Delete("/", h.DeleteContract)
				r.Post("/submit", h.SubmitContract)
				r.Post("/approve", h.ApproveContract)
				r.Post("/counter", h.CounterContract)
				r.Post("/amend", h.AmendContract)
				r.Post("/renew", h.RenewContract)
				r.Post("/salary-sheet", h.ImportSalarySheet)
			})
		})

		// Background task routes
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/{id}", h.GetTask)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/callback", h.PaymentCallback)
			r.Get("/{id}/negative-amendments", h.NegativeAmendments)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/terminate", h.TerminateExpired)
		})

		// Scenario routes (demo/dev only, disabled without a seeder)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Liveness probe for the gateway.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
