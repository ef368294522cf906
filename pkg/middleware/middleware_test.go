package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func request(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Shutdown()
	h := rl.Middleware(ok)

	assert.Equal(t, http.StatusNoContent, request(h, "10.0.0.1:5000"))
	assert.Equal(t, http.StatusNoContent, request(h, "10.0.0.1:5001"), "port does not split the bucket")
	assert.Equal(t, http.StatusTooManyRequests, request(h, "10.0.0.1:5002"))
	assert.Equal(t, http.StatusNoContent, request(h, "10.0.0.2:5000"))
}

func TestRateLimiter_EvictsIdleAndOldest(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	defer rl.Shutdown()
	now := time.Date(2025, 2, 17, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.maxSize = 2

	rl.getLimiter("a")
	now = now.Add(time.Second)
	rl.getLimiter("b")
	now = now.Add(time.Second)
	rl.getLimiter("c")
	assert.Len(t, rl.limiters, 2)
	assert.NotContains(t, rl.limiters, "a")

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 2, rl.cleanup())
	assert.Empty(t, rl.limiters)
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(false)(ok)
	req := httptest.NewRequest(http.MethodGet, "https://api.example/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")

	dev := SecurityHeaders(true)(ok)
	w = httptest.NewRecorder()
	dev.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost/", nil))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
