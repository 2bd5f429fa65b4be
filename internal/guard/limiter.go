package guard

import (
	"sync"
	"time"
)

// Limit is a fixed-window quota: at most Max hits per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// sweepThreshold bounds the bucket map; expired buckets are dropped once it
// grows past this size.
const sweepThreshold = 10_000

// Limiter counts requests per (scope, client key) in fixed windows. Buckets
// live only in this process.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter creates a Limiter. A nil clock uses time.Now.
func NewLimiter(now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{buckets: make(map[string]*bucket), now: now}
}

// Hit records one request and reports whether it is within the limit.
func (l *Limiter) Hit(scope, clientKey string, limit Limit) bool {
	now := l.now()
	key := scope + ":" + clientKey

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		if !ok && len(l.buckets) >= sweepThreshold {
			l.sweep(now)
		}
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(limit.Window)}
		return true
	}
	if b.count >= limit.Max {
		return false
	}
	b.count++
	return true
}

// Reset drops every bucket.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.buckets)
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep drops expired buckets and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweep(now)
}

func (l *Limiter) sweep(now time.Time) int {
	removed := 0
	for k, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}
