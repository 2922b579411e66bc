// Package ratelimit provides a fixed-window request counter keyed by
// caller, tenant, and path.
//
// Bursts at window boundaries are accepted as a known tradeoff of the
// fixed-window approach. State is per-instance; multi-instance deployments
// rate limit independently.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	count   int
	resetAt time.Time
}

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Limiter tracks fixed-window counters per key. Instances are injectable so
// tests can construct isolated limiters.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Check records a hit for key and reports whether it is within maxRequests
// per window. On the first hit for a key, or once the window has passed, the
// count resets to 1 and a new window opens.
func (l *Limiter) Check(key string, maxRequests int, window time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(window)}
		l.buckets[key] = b
	} else {
		b.count++
	}

	remaining := maxRequests - b.count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   b.count <= maxRequests,
		Remaining: remaining,
		ResetAt:   b.resetAt,
	}
}
