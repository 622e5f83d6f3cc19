package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	m := NewMemoryLimiter(1, 3)
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "user-a")
		require.NoError(t, err)
		assert.True(t, ok, "request %d within burst should be allowed", i)
	}

	ok, err := m.Allow(ctx, "user-a")
	require.NoError(t, err)
	assert.False(t, ok, "request beyond burst should be denied")
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()

	ctx := context.Background()
	ok, err := m.Allow(ctx, "user-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Allow(ctx, "user-a")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = m.Allow(ctx, "user-b")
	require.NoError(t, err)
	assert.True(t, ok, "a different key has its own bucket")
}

func TestMemoryLimiter_IdleCallersStartFresh(t *testing.T) {
	m := NewMemoryLimiter(0.001, 1)
	defer m.Close()

	ctx := context.Background()
	ok, err := m.Allow(ctx, "user-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Allow(ctx, "user-a")
	require.NoError(t, err)
	require.False(t, ok)

	// Evicting the exhausted budget re-admits the caller at full budget.
	m.evictIdle(time.Now().Add(time.Hour))
	ok, err = m.Allow(ctx, "user-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_CloseIsIdempotent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
}

func TestNoopLimiter_AlwaysAllows(t *testing.T) {
	var l Limiter = NoopLimiter{}
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(context.Background(), "anyone")
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestMiddleware_Returns429WithEnvelope(t *testing.T) {
	m := NewMemoryLimiter(0.001, 1)
	defer m.Close()

	handler := Middleware(m, "test", IPKeyFunc, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:12345"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestMiddleware_EmptyKeyIsExempt(t *testing.T) {
	m := NewMemoryLimiter(0.001, 1)
	defer m.Close()

	handler := Middleware(m, "test", func(*http.Request) string { return "" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.10:54321"
	assert.Equal(t, "192.168.1.10", IPKeyFunc(req))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", IPKeyFunc(req))
}
