package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubRateLimiter struct {
	allowed bool
	err     error
	key     string
	limit   int
	window  time.Duration
}

func (s *stubRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.key = key
	s.limit = limit
	s.window = window
	return s.allowed, s.err
}

func (s *stubRateLimiter) Wait(_ context.Context, _ string) error {
	return nil
}

func TestRateLimitAllowsUnderLimit(t *testing.T) {
	limiter := &stubRateLimiter{allowed: true}
	h := RateLimit(limiter, 100, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	req.RemoteAddr = "10.0.0.7:52113"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ratelimit:api:10.0.0.7", limiter.key)
	assert.Equal(t, 100, limiter.limit)
	assert.Equal(t, time.Second, limiter.window)
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	h := RateLimit(&stubRateLimiter{allowed: false}, 100, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimitFailsOpenOnLimiterError(t *testing.T) {
	h := RateLimit(&stubRateLimiter{err: assert.AnError}, 100, time.Second)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "203.0.113.9", extractClientIP(req))
}

func TestExtractClientIPFallsBackToRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Real-IP", "203.0.113.10")

	assert.Equal(t, "203.0.113.10", extractClientIP(req))
}

func TestExtractClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.11:9999"

	assert.Equal(t, "203.0.113.11", extractClientIP(req))
}
