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
  1. Logger:      Request logging
  2. Recoverer:   Panic recovery (500 instead of crash)
  3. RequestID:   Unique ID per request for tracing
  4. CORS:        Cross-origin requests for frontend
  5. RequireAuth: Bearer token verification on everything but login

ROUTE GROUPS:
  /api/auth/login       Token issuance (unauthenticated)
  /api/users/*          User management
  /api/roles            Role catalog
  /api/vehicles/*       Vehicles, state, snapshots, norms, waybills, audit
  /api/norms/*          Norm vintage deletion
  /api/waybills/*       Waybills, trip records, signatures
  /api/records/*        Trip record edit/delete

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Token verification
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		// Everything below requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.Tokens))

			r.Route("/users", func(r chi.Router) {
				r.Get("/", h.ListUsers)
				r.Post("/", h.CreateUser)
			})
			r.Get("/roles", h.ListRoles)

			r.Route("/vehicles", func(r chi.Router) {
				r.Get("/", h.ListVehicles)
				r.Post("/", h.CreateVehicle)
				r.Get("/{id}", h.GetVehicle)
				r.Delete("/{id}", h.DeleteVehicle)
				r.Post("/{id}/state", h.SeedState)
				r.Get("/{id}/snapshots", h.ListSnapshots)
				r.Get("/{id}/audit", h.ListAudit)
				r.Get("/{id}/waybills", h.ListWaybills)
				r.Route("/{id}/norms", func(r chi.Router) {
					r.Get("/", h.ListNorms)
					r.Post("/", h.CreateNorm)
					r.Get("/resolve", h.ResolveNorm)
				})
			})

			r.Delete("/norms/{id}", h.DeleteNorm)

			r.Route("/waybills", func(r chi.Router) {
				r.Post("/", h.CreateWaybill)
				r.Get("/{id}", h.GetWaybill)
				r.Delete("/{id}", h.DeleteWaybill)
				r.Post("/{id}/recalc", h.RecalcWaybill)
				r.Post("/{id}/records", h.CommitRecord)
				r.Post("/{id}/signatures", h.SignWaybill)
				r.Get("/{id}/signatures", h.SignatureStatus)
			})

			r.Route("/records", func(r chi.Router) {
				r.Put("/{id}", h.EditRecord)
				r.Delete("/{id}", h.DeleteRecord)
			})
		})
	})

	return r
}
