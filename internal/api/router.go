package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/openme/internal/guard"
)

// NewRouter creates a chi router with all API routes mounted. Endpoint routes
// accept every method so preflight and 405 handling follow the guard order.
// sseHandler, if non-nil, is mounted at GET /events behind the origin check.
func NewRouter(h *Handler, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(guard.SecurityHeaders)

	r.HandleFunc("/letter-list", h.ListLetters)
	r.HandleFunc("/letter-open", h.OpenLetter)
	r.HandleFunc("/read-receipt", h.ReadReceipt)
	r.HandleFunc("/letter-update", h.UpdateLetter)
	r.HandleFunc("/emergency-notify", h.EmergencyNotify)
	r.HandleFunc("/unlock-evaluator", h.EvaluateUnlock)

	if sseHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(OriginMiddleware(h.guard, "GET,OPTIONS"))
			// OPTIONS is answered by the middleware.
			r.Method(http.MethodGet, "/events", sseHandler)
			r.Method(http.MethodOptions, "/events", sseHandler)
		})
	}

	return r
}
