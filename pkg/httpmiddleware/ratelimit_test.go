package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(handler http.Handler, remoteAddr string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BudgetAndHeaders(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 3, Window: time.Minute})(okHandler())

	for i := range 3 {
		w := hit(handler, "10.0.0.1:1000", nil)
		require.Equal(t, http.StatusOK, w.Code, "request %d is within budget", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := hit(handler, "10.0.0.1:1000", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:1", nil).Code)
	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.2:1", nil).Code)
	// The port is not part of the key.
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.0.0.1:9", nil).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-API-Key") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:1", map[string]string{"X-API-Key": "a"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "10.0.0.2:1", map[string]string{"X-API-Key": "a"}).Code)
	assert.Equal(t, http.StatusOK, hit(handler, "10.0.0.1:1", map[string]string{"X-API-Key": "b"}).Code)
}

func TestRateLimit_ForwardedForWins(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	xff := map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}
	assert.Equal(t, http.StatusOK, hit(handler, "192.168.1.1:1", xff).Code)
	// A different socket peer behind the same first hop shares the budget.
	assert.Equal(t, http.StatusTooManyRequests, hit(handler, "192.168.1.2:1", xff).Code)
}

func TestLimiter_SweepEvictsIdleKeys(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()

	_, _, ok := l.allow("stale", now)
	require.True(t, ok)
	_, _, ok = l.allow("fresh", now.Add(2*time.Minute))
	require.True(t, ok)

	l.sweep(now.Add(2 * time.Minute))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.clients, "stale")
	assert.Contains(t, l.clients, "fresh")
}

func TestLimiter_SlidingWindowCarriesOver(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 2, Window: time.Minute})
	start := time.Now().Truncate(time.Minute)

	_, _, ok := l.allow("k", start)
	require.True(t, ok)
	_, _, ok = l.allow("k", start)
	require.True(t, ok)

	// Just after rollover the previous window still weighs in heavily:
	// the first request squeezes through, the second does not.
	boundary := start.Add(time.Minute + time.Second)
	_, _, ok = l.allow("k", boundary)
	require.True(t, ok)
	_, _, ok = l.allow("k", boundary)
	assert.False(t, ok, "previous window's requests still count near the boundary")

	// Deep into the next window the carried weight has decayed.
	_, _, ok = l.allow("k", start.Add(2*time.Minute-time.Second))
	assert.True(t, ok)
}
