/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/physicals/*       Physical advance records + audit trail
  /api/estimations/*     Estimations, detail lines, import, comparison
  /api/commitments/*     Commitment tracking rows
  /api/schedules/*       Schedules, activities, chains
  /api/activities/*      Activity-level operations
  /api/reconciliation/*  Summary and dashboard views
  /api/analytics/*       Approval latency

SECURITY NOTE:
  Actor identity is taken from the X-Actor-ID header without
  verification; identity/token validation is an upstream concern.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Physical advance routes
		r.Route("/physicals", func(r chi.Router) {
			r.Get("/", h.ListPhysicals)
			r.Post("/", h.CreatePhysical)
			r.Get("/{id}", h.GetPhysical)
			r.Put("/{id}", h.UpdatePhysical)
			r.Delete("/{id}", h.DeletePhysical)
			r.Post("/{id}/status", h.TransitionPhysical)
			r.Get("/{id}/history", h.PhysicalHistory)
		})

		// Estimation routes
		r.Route("/estimations", func(r chi.Router) {
			r.Get("/", h.ListEstimations)
			r.Post("/", h.CreateEstimation)
			r.Post("/import", h.ImportFromSchedule)
			r.Get("/{id}", h.GetEstimation)
			r.Delete("/{id}", h.DeleteEstimation)
			r.Post("/{id}/status", h.TransitionEstimation)
			r.Get("/{id}/details", h.ListDetails)
			r.Post("/{id}/details", h.AddDetail)
			r.Put("/{id}/details/{detailID}", h.UpdateDetail)
			r.Delete("/{id}/details/{detailID}", h.RemoveDetail)
			r.Get("/{id}/compare", h.CompareWithReal)
			r.Post("/{id}/commitments", h.UpdateCommitmentStatuses)
		})

		// Commitment tracking routes
		r.Route("/commitments", func(r chi.Router) {
			r.Get("/", h.ListCommitments)
			r.Post("/", h.CreateCommitment)
			r.Get("/{id}", h.GetCommitment)
			r.Put("/{id}", h.UpdateCommitment)
		})

		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
			r.Get("/{id}", h.GetSchedule)
			r.Post("/{id}/deactivate", h.DeactivateSchedule)
			r.Post("/{id}/duplicate", h.DuplicateSchedule)
			r.Get("/{id}/validate", h.ValidateSchedule)
			r.Get("/{id}/activities", h.ListActivities)
			r.Post("/{id}/activities", h.AddActivity)
			r.Get("/{id}/chain", h.GetChain)
			r.Post("/{id}/chain/recompute", h.RecomputeChain)
		})

		// Activity routes
		r.Route("/activities", func(r chi.Router) {
			r.Get("/{id}", h.GetActivity)
			r.Put("/{id}", h.UpdateActivity)
			r.Delete("/{id}", h.RemoveActivity)
			r.Post("/{id}/progress", h.UpdateProgress)
			r.Post("/{id}/concepts", h.LinkConcepts)
			r.Delete("/{id}/concepts", h.UnlinkConcepts)
		})

		// Reconciliation routes
		r.Route("/reconciliation", func(r chi.Router) {
			r.Get("/summary", h.GetSummary)
			r.Get("/dashboard", h.GetDashboard)
		})

		// Analytics routes
		r.Route("/analytics", func(r chi.Router) {
			r.Get("/approvals", h.ApprovalStats)
		})

		// Demo data (development only)
		r.Post("/demo/load", h.LoadDemoData)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
