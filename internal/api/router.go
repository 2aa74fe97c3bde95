package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/segue/internal/assetservice"
	"github.com/starford/segue/internal/session"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *assetservice.Service, hub *session.Hub, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ph := NewPreviewHandler(hub)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Asset documents.
	r.Get("/assets", h.ListAssets)
	r.Post("/assets", h.CreateAsset)
	r.Get("/assets/*", h.GetAsset)
	r.Put("/assets/*", h.UpdateAsset)
	r.Delete("/assets/*", h.DeleteAsset)

	// Search.
	r.Get("/search", h.Search)

	// Sections.
	r.Get("/sections", h.FindSections)
	r.Get("/sections/*", h.InspectSections)
	r.Post("/sections/*", h.EditSections)

	// Preview sessions.
	r.Route("/previews", func(r chi.Router) {
		r.Get("/", ph.List)
		r.Post("/", ph.Open)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", ph.Get)
			r.Delete("/", ph.Close)
			r.Post("/commands", ph.Command)
			r.Delete("/modifiers", ph.ResetModifiers)
			r.Put("/modifiers/{bone}", ph.SetModifier)
			r.Delete("/modifiers/{bone}", ph.RemoveModifier)
			r.Post("/key", ph.SetKey)
		})
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
