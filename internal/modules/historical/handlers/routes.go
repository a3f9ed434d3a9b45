package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/historical", func(r chi.Router) {
		r.Get("/table", h.HandleGetTable)
		r.Get("/summary/{symbol}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetSummary(w, r, chi.URLParam(r, "symbol"))
		})
	})
}
