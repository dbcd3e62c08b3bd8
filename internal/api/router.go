package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the middleware chain and routes.
func NewRouter(h *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(RequestID)
	if h.cfg.LogRequests {
		r.Use(RequestLogger(h.logger))
	}
	r.Use(CORS(h.cfg.AllowedOrigins()))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/me", h.Me)
		r.Post("/chat", h.Chat)
		r.Post("/plan", h.Plan)
	})

	return r
}
