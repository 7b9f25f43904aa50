package api

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	maxRateLimitClients = 10000
	rateLimitIdleTTL    = 10 * time.Minute
)

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	RPS   int // requests per second
	Burst int // burst size
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newTokenBucket(rps, burst int, now time.Time) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: float64(rps),
		lastRefill: now,
	}
}

func (b *tokenBucket) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// NewRateLimitMiddleware returns a per-client token-bucket rate limiter.
// Idle clients age out of a bounded LRU instead of a cleanup goroutine.
func NewRateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	burst := cfg.Burst
	if burst < 1 {
		burst = cfg.RPS
	}
	var mu sync.Mutex
	clients := expirable.NewLRU[string, *tokenBucket](maxRateLimitClients, nil, rateLimitIdleTTL)

	return func(c *fiber.Ctx) error {
		if isProbe(c.Path()) {
			return c.Next()
		}

		now := time.Now()
		clientIP := c.IP()

		mu.Lock()
		bucket, ok := clients.Get(clientIP)
		if !ok {
			bucket = newTokenBucket(cfg.RPS, burst, now)
		}
		clients.Add(clientIP, bucket)
		mu.Unlock()

		if !bucket.allow(now) {
			return problemResponse(c, fiber.StatusTooManyRequests,
				"rate_limit_exceeded", "Too Many Requests",
				"Rate limit exceeded. Please try again later.")
		}

		return c.Next()
	}
}
