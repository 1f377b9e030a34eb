package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-business-hub/internal/model"
)

func countingHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitMiddleware_UnlimitedGeneral(t *testing.T) {
	mw := NewRateLimitMiddleware(RateLimits{GeneralRPM: 0, LoginRPM: 1}, nil)

	calls := 0
	handler := mw.Handler(countingHandler(&calls))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	assert.Equal(t, 10, calls)
}

func TestRateLimitMiddleware_RejectsWithRetryAfter(t *testing.T) {
	mw := NewRateLimitMiddleware(RateLimits{LoginRPM: 1}, nil)

	calls := 0
	handler := mw.Handler(countingHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, 1, calls, "downstream handler must not run for a rejected request")
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	var body model.APIResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
}

func TestRateLimitMiddleware_TiersAreIndependent(t *testing.T) {
	mw := NewRateLimitMiddleware(RateLimits{LoginRPM: 1, RefreshRPM: 1}, nil)

	calls := 0
	handler := mw.Handler(countingHandler(&calls))

	for _, path := range []string{"/api/auth/login", "/api/auth/refresh", "/health", "/health", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRateLimitMiddleware_KeysByClientIP(t *testing.T) {
	mw := NewRateLimitMiddleware(RateLimits{LoginRPM: 1}, nil)

	calls := 0
	handler := mw.Handler(countingHandler(&calls))

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, ip)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5001"
	req.Header.Set("X-Forwarded-For", "10.0.0.99")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "forwarded headers are ignored without a trusted proxy")
}

func TestRateLimitMiddleware_Configuration(t *testing.T) {
	mw := NewRateLimitMiddleware(RateLimits{GeneralRPM: -1}, nil)
	assert.Equal(t, -1, mw.limits.GeneralRPM)
	assert.Equal(t, 10, mw.limits.LoginRPM)
	assert.Equal(t, 20, mw.limits.RefreshRPM)
}

type failingStore struct{}

func (failingStore) Take(context.Context, string, int) (Decision, error) {
	return Decision{}, errors.New("connection refused")
}

func TestRateLimitMiddleware_StoreErrorAllows(t *testing.T) {
	mw := NewRateLimitMiddleware(RateLimits{LoginRPM: 1}, failingStore{})

	calls := 0
	handler := mw.Handler(countingHandler(&calls))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 3, calls)
}

func TestMemoryLimitStore_Refills(t *testing.T) {
	store := NewMemoryLimitStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := store.Take(ctx, "login:1.2.3.4", 2)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := store.Take(ctx, "login:1.2.3.4", 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	now = now.Add(30 * time.Second)
	d, err = store.Take(ctx, "login:1.2.3.4", 2)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimitStore_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisLimitStore(client, "")
	now := time.Date(2026, 1, 1, 12, 0, 15, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := store.Take(ctx, "refresh:1.2.3.4", 3)
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
	}

	d, err := store.Take(ctx, "refresh:1.2.3.4", 3)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, 45*time.Second, d.RetryAfter)

	now = now.Add(45 * time.Second)
	d, err = store.Take(ctx, "refresh:1.2.3.4", 3)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 3, retryAfterSeconds(2100*time.Millisecond))
}
