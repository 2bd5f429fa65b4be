// Package api implements the Open Me JSON endpoints using chi.
package api

import (
	"net/http"

	"github.com/starford/openme/internal/guard"
	"github.com/starford/openme/internal/metrics"
)

// OriginMiddleware rejects requests whose Origin is not allow-listed and
// answers preflight for routes without their own pipeline.
func OriginMiddleware(g *guard.Guard, methods string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cerr := g.CheckOrigin(w, r, methods); cerr != nil {
				metrics.RecordRejection("events", cerr.Status)
				writeClientError(w, cerr)
				return
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
