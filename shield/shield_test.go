package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 11, 27, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(map[string]Rule{
		"POST /track": {MaxRequests: 2, Window: time.Minute},
		"GET /broken": {MaxRequests: 0, Window: time.Minute},
	}, WithClock(func() time.Time { return now }))

	allowed, _ := rl.Allow("10.0.0.1", "POST /track")
	assert.True(t, allowed)
	allowed, _ = rl.Allow("10.0.0.1", "POST /track")
	assert.True(t, allowed)

	allowed, wait := rl.Allow("10.0.0.1", "POST /track")
	assert.False(t, allowed)
	assert.Equal(t, time.Minute, wait)

	allowed, _ = rl.Allow("10.0.0.2", "POST /track")
	assert.True(t, allowed, "clients have separate buckets")

	for range 5 {
		allowed, _ = rl.Allow("10.0.0.1", "GET /broken")
		assert.True(t, allowed, "invalid rules are ignored")
	}

	now = now.Add(time.Minute)
	allowed, _ = rl.Allow("10.0.0.1", "POST /track")
	assert.True(t, allowed, "window reset")
}

func TestRateLimiter_Middleware(t *testing.T) {
	now := time.Date(2026, 11, 27, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(map[string]Rule{"POST /track": {MaxRequests: 1, Window: 30 * time.Second}},
		WithClock(func() time.Time { return now }))
	h := rl.Middleware(http.HandlerFunc(ok))

	call := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/track", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call(http.MethodPost).Code)
	rec := call(http.MethodPost)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, http.StatusOK, call(http.MethodGet).Code, "GET /track has no rule")
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ExtractIP(req))

	req.Header.Set("X-Forwarded-For", " 198.51.100.4 ")
	assert.Equal(t, "198.51.100.4", ExtractIP(req))
}

func TestMaxJSONBody(t *testing.T) {
	var readErr error
	h := MaxJSONBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`{"productId":"kettle"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	h.ServeHTTP(httptest.NewRecorder(), req)
	var tooLarge *http.MaxBytesError
	require.ErrorAs(t, readErr, &tooLarge)
	assert.EqualValues(t, 8, tooLarge.Limit)

	req = httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`plain text body`))
	req.Header.Set("Content-Type", "text/plain")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NoError(t, readErr)
}

func TestAPIStack(t *testing.T) {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("ok"))
	})
	stack := APIStack(DefaultConfig(), nil)
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}
