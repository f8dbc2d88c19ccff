package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/artistamplifier/api/pkg/response"
)

// RateLimiter admits requests per client IP over a sliding window. Buckets
// live in process memory: with anonymous clients there is no account to
// meter, and a restart resetting the counters is acceptable.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Admit records a hit for key and reports whether it fits inside the
// window. Expired timestamps are pruned on every call, so an idle bucket
// costs nothing once its window passes.
func (rl *RateLimiter) Admit(key string, maxRequests int, window time.Duration) (ok bool, retryAfter time.Duration, remaining int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-window)

	hits := rl.buckets[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= maxRequests {
		rl.buckets[key] = kept
		return false, kept[0].Sub(cutoff), 0
	}

	kept = append(kept, now)
	rl.buckets[key] = kept
	return true, 0, maxRequests - len(kept)
}

// Limit creates a rate limiting middleware for one endpoint group.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("%s:%s", keyPrefix, clientIP(c))

		ok, retryAfter, remaining := rl.Admit(key, maxRequests, window)
		if !ok {
			c.Set("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())+1))
			return response.RateLimited(c, "Too many requests, try again later")
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		return c.Next()
	}
}

// clientIP resolves the caller's address, preferring proxy headers since
// the service runs behind a reverse proxy in production.
func clientIP(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if real := c.Get("X-Real-IP"); real != "" {
		return real
	}
	return c.IP()
}

// ValidateLimit returns a rate limiter for the audio pre-check endpoint
func (rl *RateLimiter) ValidateLimit(max int, window time.Duration) fiber.Handler {
	return rl.Limit("validate", max, window)
}

// AnalyzeLimit returns a rate limiter for analysis endpoints
func (rl *RateLimiter) AnalyzeLimit(max int, window time.Duration) fiber.Handler {
	return rl.Limit("analyze", max, window)
}

// GenerateLimit returns a rate limiter for description generation
func (rl *RateLimiter) GenerateLimit(max int, window time.Duration) fiber.Handler {
	return rl.Limit("generate", max, window)
}

// UploadLimit returns a rate limiter for upload token issuance
func (rl *RateLimiter) UploadLimit(max int, window time.Duration) fiber.Handler {
	return rl.Limit("upload", max, window)
}
