package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string, events http.Handler) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Records.
	r.Post("/records", h.CreateRecord)
	r.Get("/records/{id}", h.GetRecord)
	r.Post("/records/{id}/append", h.AppendRecord)

	// Lexical search.
	r.Get("/search", h.Search)
	r.Get("/search/fuzzy", h.FuzzySearch)

	// Retrieval queries.
	r.Route("/query", func(r chi.Router) {
		r.Post("/similar", h.Similar)
		r.Get("/recent", h.Recent)
		r.Post("/related", h.Related)
		r.Post("/sensation", h.Sensation)
	})

	r.Post("/admin/reindex", h.Reindex)

	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
