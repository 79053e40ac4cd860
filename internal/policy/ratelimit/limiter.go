// Package ratelimit implements a token bucket limiter keyed by API caller.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages one token bucket per authenticated subject. Unauthenticated
// requests share the "anonymous" bucket.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained request rate per actor; zero or less disables
	// limiting.
	RPS float64
	// Burst is the bucket depth per actor.
	Burst int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Allow reports whether the actor may proceed now. It never blocks; callers
// reject the request when it returns false.
func (l *Limiter) Allow(actor string) bool {
	if actor == "" {
		actor = "anonymous"
	}
	l.mu.Lock()
	limiter, exists := l.limiters[actor]
	if !exists {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[actor] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}
