package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	window := 5 * time.Minute

	for i := 0; i < 3; i++ {
		ok, _, _ := rl.Admit("analyze:1.2.3.4", 3, window)
		require.True(t, ok, "request %d should be admitted", i+1)
	}

	ok, retryAfter, remaining := rl.Admit("analyze:1.2.3.4", 3, window)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)
	assert.Greater(t, retryAfter, time.Duration(0))

	// Another key is a separate bucket
	ok, _, _ = rl.Admit("analyze:5.6.7.8", 3, window)
	assert.True(t, ok)

	// Sliding forward past the window frees the bucket
	now = now.Add(window + time.Second)
	ok, _, _ = rl.Admit("analyze:1.2.3.4", 3, window)
	assert.True(t, ok)
}

func TestAdmit_PartialExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	window := time.Minute

	ok, _, _ := rl.Admit("k", 2, window)
	require.True(t, ok)

	now = now.Add(40 * time.Second)
	ok, _, _ = rl.Admit("k", 2, window)
	require.True(t, ok)

	// First hit still inside the window
	ok, _, _ = rl.Admit("k", 2, window)
	assert.False(t, ok)

	// First hit slides out, second remains
	now = now.Add(25 * time.Second)
	ok, _, remaining := rl.Admit("k", 2, window)
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
}

func TestLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter()

	app := fiber.New()
	app.Post("/x", rl.Limit("x", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(ip string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("X-Forwarded-For", ip)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := do("9.9.9.9")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Remaining"))

	resp = do("9.9.9.9")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do("9.9.9.9")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// A different client is unaffected
	resp = do("8.8.8.8")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClientIP(t *testing.T) {
	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = clientIP(c)
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	_, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "198.51.100.2")
	_, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.2", got)
}
