package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{counts: map[string]int64{}}
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func limitedRequest(customer uuid.UUID, addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/campaigns/c1/reservations", nil)
	req.RemoteAddr = addr
	if customer != uuid.Nil {
		req = req.WithContext(WithCustomerID(req.Context(), customer))
	}
	return req
}

func TestRateLimitBlocksCustomerOverLimit(t *testing.T) {
	store := newFakeLimiter()
	handler := RateLimit(NewRateLimitPolicy("reserve", time.Minute, 2), store, nil)(okHandler())
	customer := uuid.New()

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest(customer, "10.0.0.1:1234"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(customer, "10.0.0.2:1234"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, int64(3), store.counts["reserve:customer:"+customer.String()])
}

func TestRateLimitBlocksSharedIP(t *testing.T) {
	store := newFakeLimiter()
	handler := RateLimit(NewRateLimitPolicy("reserve", time.Minute, 1), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(uuid.New(), "10.0.0.1:1234"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(uuid.New(), "10.0.0.1:9999"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := newFakeLimiter()
	handler := RateLimit(NewRateLimitPolicy("reserve", time.Minute, 0), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(uuid.New(), "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.counts)
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	store := newFakeLimiter()
	store.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("reserve", time.Minute, 5), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest(uuid.New(), "10.0.0.1:1234"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
