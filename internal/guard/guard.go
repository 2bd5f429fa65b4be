// Package guard implements the request checks shared by the public endpoints:
// security headers, CORS origin allow-listing, JSON payload bounds, per-client
// rate limiting and CMS admin-token authentication.
//
// Every check returns a *apperr.ClientError; nil means the request may proceed.
package guard

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/starford/openme/internal/apperr"
)

// Request and response header names.
const (
	HeaderClientKey    = "X-Client-Key"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderAdminToken   = "X-Admin-Token"
	HeaderActorID      = "X-Actor-Id"

	allowedHeaders = "content-type,x-client-key,x-admin-token,x-actor-id"
)

// Guard holds the allow-list, admin token and rate limiter. The allow-list
// and token can be swapped at runtime by the config watcher.
type Guard struct {
	origins    atomic.Pointer[[]string]
	adminToken atomic.Pointer[string]
	limiter    *Limiter
	logger     *slog.Logger
}

// New creates a Guard. origins are normalised before use.
func New(origins []string, adminToken string, limiter *Limiter, logger *slog.Logger) *Guard {
	if limiter == nil {
		limiter = NewLimiter(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{limiter: limiter, logger: logger}
	g.SetAllowedOrigins(origins)
	g.SetAdminToken(adminToken)
	return g
}

// SetAllowedOrigins replaces the CORS allow-list.
func (g *Guard) SetAllowedOrigins(origins []string) {
	normalized := make([]string, 0, len(origins))
	for _, o := range origins {
		if n := normalizeOrigin(o); n != "" {
			normalized = append(normalized, n)
		}
	}
	g.origins.Store(&normalized)
}

// AllowedOrigins returns the current normalised allow-list.
func (g *Guard) AllowedOrigins() []string {
	return slices.Clone(*g.origins.Load())
}

// SetAdminToken replaces the CMS admin token. Empty disables CMS writes.
func (g *Guard) SetAdminToken(token string) {
	g.adminToken.Store(&token)
}

// Limiter returns the rate limiter backing Allow.
func (g *Guard) Limiter() *Limiter {
	return g.limiter
}

// ParseOrigins splits a comma-separated origin list, dropping blanks.
func ParseOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

// ApplySecurityHeaders sets the caching and framing headers every endpoint
// response carries.
func ApplySecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
}

// SecurityHeaders is middleware applying ApplySecurityHeaders before the
// wrapped handler runs, so rejections carry them too.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ApplySecurityHeaders(w)
		next.ServeHTTP(w, r)
	})
}

// CheckOrigin validates the Origin header against the allow-list. Requests
// without an Origin pass. Vary and the allowed methods/headers are always set;
// the origin is echoed only when it is allowed.
func (g *Guard) CheckOrigin(w http.ResponseWriter, r *http.Request, methods string) *apperr.ClientError {
	h := w.Header()
	h.Set("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", methods)
	h.Set("Access-Control-Allow-Headers", allowedHeaders)

	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	if !slices.Contains(*g.origins.Load(), normalizeOrigin(origin)) {
		g.logger.Warn("origin rejected",
			slog.String("origin", origin),
			slog.String("path", r.URL.Path))
		return apperr.Reject(http.StatusForbidden, "Origin not allowed")
	}
	h.Set("Access-Control-Allow-Origin", origin)
	return nil
}

// ClientKey identifies the caller for rate limiting only: the explicit client
// header, else the first forwarded-for hop, else "unknown".
func ClientKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderClientKey)); key != "" {
		return key
	}
	if fwd := strings.TrimSpace(r.Header.Get(HeaderForwardedFor)); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return "unknown"
}

// Allow counts the request against scope for the caller's client key.
func (g *Guard) Allow(r *http.Request, scope string, limit Limit) *apperr.ClientError {
	key := ClientKey(r)
	if g.limiter.Hit(scope, key, limit) {
		return nil
	}
	g.logger.Warn("rate limited",
		slog.String("scope", scope),
		slog.String("client_key", key))
	return apperr.Reject(http.StatusTooManyRequests, "Too many requests")
}

// Authorize checks the CMS admin token and returns the acting identity from
// the actor header.
func (g *Guard) Authorize(r *http.Request) (string, *apperr.ClientError) {
	token := *g.adminToken.Load()
	if token == "" {
		return "", apperr.Reject(http.StatusServiceUnavailable, "CMS admin token is not configured")
	}
	supplied := r.Header.Get(HeaderAdminToken)
	if supplied == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
		g.logger.Warn("unauthorized cms write", slog.String("path", r.URL.Path))
		return "", apperr.Reject(http.StatusUnauthorized, "Unauthorized")
	}
	actor := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if actor == "" {
		return "", apperr.Reject(http.StatusUnauthorized, "x-actor-id header is required")
	}
	return actor, nil
}
