/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. withActor:  Loads the X-User-ID user (api routes only)

ROUTE GROUPS:
  /api/users/*          Users
  /api/elements/*       Elements, membership queries, pending approvals
  /api/concerns/*       Ownership and interest
  /api/memberships      Group membership
  /api/events/*         Events, attachments, cloning, journal
  /api/commitments/*    Approval and removal
  /api/requests/*       Fulfilment and quantities
  /api/forms/*          Form responses
  /api/notes/*          Notes
  /api/scenarios/*      Demo scenarios
  /api/admin/*          Admin operations
  /api/reset            Database reset (dev only)

SECURITY NOTE:
  No authentication middleware. X-User-ID is trusted as given.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(h.withActor)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
		})

		r.Route("/elements", func(r chi.Router) {
			r.Get("/", h.ListElements)
			r.Post("/", h.CreateElement)
			r.Get("/{id}", h.GetElement)
			r.Delete("/{id}", h.DestroyElement)
			r.Get("/{id}/members", h.ListMembers)
			r.Get("/{id}/groups", h.ListGroups)
			r.Get("/{id}/pending", h.ListPending)
		})

		r.Route("/concerns", func(r chi.Router) {
			r.Post("/", h.SaveConcern)
			r.Delete("/{id}", h.DeleteConcern)
		})

		r.Post("/memberships", h.AddMembership)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Get("/{id}", h.GetEvent)
			r.Patch("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DestroyEvent)
			r.Get("/{id}/journal", h.GetJournal)
			r.Post("/{id}/attachments", h.AttachElements)
			r.Post("/{id}/requirements", h.CreateRequirement)
			r.Post("/{id}/notify", h.FinishEditing)
			r.Post("/{id}/clones", h.CloneEvent)
			r.Post("/{id}/match", h.MatchEvent)
			r.Post("/{id}/sync", h.SyncEvents)
			r.Post("/{id}/forms", h.AttachEventForm)
			r.Post("/{id}/notes", h.AddEventNote)
		})

		r.Route("/commitments", func(r chi.Router) {
			r.Delete("/{id}", h.RemoveCommitment)
			r.Post("/{id}/approve", h.Approve)
			r.Post("/{id}/reject", h.Reject)
			r.Post("/{id}/note", h.Note)
			r.Post("/{id}/unfulfill", h.Unfulfill)
			r.Post("/{id}/forms", h.AttachCommitmentForm)
			r.Post("/{id}/notes", h.AddCommitmentNote)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Get("/{id}", h.GetRequest)
			r.Delete("/{id}", h.DestroyRequest)
			r.Post("/{id}/fulfill", h.Fulfill)
			r.Post("/{id}/bulk-fulfill", h.BulkFulfill)
			r.Put("/{id}/quantity", h.AdjustQuantity)
			r.Post("/{id}/decrement", h.Decrement)
			r.Post("/{id}/reconfirm", h.Reconfirm)
			r.Post("/{id}/reconcile", h.Reconcile)
		})

		r.Route("/forms", func(r chi.Router) {
			r.Put("/{id}", h.SaveFormProgress)
			r.Post("/{id}/complete", h.CompleteForm)
		})

		r.Put("/notes/{id}", h.UpdateNote)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reconcile", h.TriggerReconcile)
		})

		r.Post("/reset", h.ResetDatabase)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
