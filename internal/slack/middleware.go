package slack

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Middleware limits how fast a single user can trigger commands.
type Middleware struct {
	logger      zerolog.Logger
	rateLimiter *RateLimiter
}

// NewMiddleware creates a new middleware instance.
func NewMiddleware(logger zerolog.Logger, maxRequests int, window time.Duration) *Middleware {
	return &Middleware{
		logger:      logger.With().Str("component", "slack.middleware").Logger(),
		rateLimiter: NewRateLimiter(maxRequests, window),
	}
}

// CheckRateLimit returns true if the user is within rate limits.
func (m *Middleware) CheckRateLimit(userID string, now time.Time) bool {
	allowed := m.rateLimiter.Allow(userID, now)
	if !allowed {
		m.logger.Warn().Str("user_id", userID).Msg("command flood rate limited")
	}
	return allowed
}

// RateLimiter implements a sliding window rate limiter per key. A
// non-positive maximum disables limiting.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
	}
}

// Allow checks if a request from key at now is allowed.
func (r *RateLimiter) Allow(key string, now time.Time) bool {
	if r.maxRequests <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)

	times := r.requests[key]
	valid := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= r.maxRequests {
		r.requests[key] = valid
		return false
	}

	r.requests[key] = append(valid, now)
	r.prune(cutoff)
	return true
}

// prune drops keys whose newest request fell out of the window.
func (r *RateLimiter) prune(cutoff time.Time) {
	for k, times := range r.requests {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(r.requests, k)
		}
	}
}
