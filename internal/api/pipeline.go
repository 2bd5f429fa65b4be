package api

import (
	"net/http"
	"time"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/guard"
	"github.com/starford/openme/internal/metrics"
)

// Rate-limit scopes, one per endpoint.
const (
	ScopeLetterOpen      = "letter-open"
	ScopeReadReceipt     = "read-receipt"
	ScopeLetterUpdate    = "letter-update"
	ScopeEmergencyNotify = "emergency-notify"
	ScopeUnlockEvaluator = "unlock-evaluator"
)

// Limits maps a scope to its fixed-window quota.
type Limits map[string]guard.Limit

// DefaultLimits returns the built-in quota for every scope.
func DefaultLimits() Limits {
	return Limits{
		ScopeLetterOpen:      {Max: 30, Window: time.Minute},
		ScopeReadReceipt:     {Max: 30, Window: time.Minute},
		ScopeLetterUpdate:    {Max: 10, Window: time.Minute},
		ScopeEmergencyNotify: {Max: 3, Window: time.Minute},
		ScopeUnlockEvaluator: {Max: 60, Window: time.Minute},
	}
}

// For returns the quota for scope, falling back to the defaults.
func (l Limits) For(scope string) guard.Limit {
	if lim, ok := l[scope]; ok {
		return lim
	}
	if lim, ok := DefaultLimits()[scope]; ok {
		return lim
	}
	return guard.Limit{Max: 60, Window: time.Minute}
}

// endpoint describes the guard steps a route runs before its own logic.
// An empty scope disables rate limiting; maxBytes 0 means no JSON body.
type endpoint struct {
	method   string
	scope    string
	maxBytes int
}

var (
	epLetterList      = endpoint{method: http.MethodGet}
	epLetterOpen      = endpoint{method: http.MethodPost, scope: ScopeLetterOpen, maxBytes: 4096}
	epReadReceipt     = endpoint{method: http.MethodPost, scope: ScopeReadReceipt, maxBytes: 4096}
	epLetterUpdate    = endpoint{method: http.MethodPost, scope: ScopeLetterUpdate, maxBytes: 8192}
	epEmergencyNotify = endpoint{method: http.MethodPost, scope: ScopeEmergencyNotify, maxBytes: 4096}
	epUnlockEvaluator = endpoint{method: http.MethodPost, scope: ScopeUnlockEvaluator, maxBytes: 2048}
)

// admit runs preflight, method, origin, payload and rate-limit checks in that
// order and decodes the body into dst. It returns false once a response has
// been written. Security headers are applied by the router middleware.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, ep endpoint, dst any) bool {
	methods := ep.method + ",OPTIONS"

	if r.Method == http.MethodOptions {
		if cerr := h.guard.CheckOrigin(w, r, methods); cerr != nil {
			h.reject(w, ep, cerr)
			return false
		}
		w.WriteHeader(http.StatusNoContent)
		return false
	}

	if r.Method != ep.method {
		w.Header().Set("Allow", methods)
		h.reject(w, ep, apperr.Reject(http.StatusMethodNotAllowed, "Method not allowed"))
		return false
	}

	if cerr := h.guard.CheckOrigin(w, r, methods); cerr != nil {
		h.reject(w, ep, cerr)
		return false
	}

	if ep.maxBytes > 0 {
		if cerr := guard.DecodeJSON(r, ep.maxBytes, dst); cerr != nil {
			h.reject(w, ep, cerr)
			return false
		}
	}

	if ep.scope != "" {
		if cerr := h.guard.Allow(r, ep.scope, h.limits.For(ep.scope)); cerr != nil {
			h.reject(w, ep, cerr)
			return false
		}
	}
	return true
}

// reject counts the refusal against the endpoint scope and writes it.
func (h *Handler) reject(w http.ResponseWriter, ep endpoint, cerr *apperr.ClientError) {
	metrics.RecordRejection(ep.scope, cerr.Status)
	writeClientError(w, cerr)
}
