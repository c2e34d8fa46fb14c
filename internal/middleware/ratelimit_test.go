package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_allowsUpToMaxThenBlocks(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("k"), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow("k"))
	assert.True(t, rl.Allow("other"), "keys are independent")
}

func TestGetIPKey_ignoresForwardedHeader(t *testing.T) {
	// RealIP runs ahead of this; raw header values must not change the key,
	// or a sender could dodge the limit by varying them.
	base := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	base.RemoteAddr = "203.0.113.7:51000"
	key := GetIPKey(base)
	assert.Equal(t, "ip:203.0.113.7", key)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
		req.RemoteAddr = "203.0.113.7:51000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		assert.Equal(t, key, GetIPKey(req))
	}
}

func TestGetIPKey_stripsPort(t *testing.T) {
	a := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	a.RemoteAddr = "203.0.113.7:51000"
	b := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	b.RemoteAddr = "203.0.113.7:51001"
	assert.Equal(t, GetIPKey(a), GetIPKey(b), "same host over new connections shares one window")
}

func TestRateLimitMiddleware_blocksWith429(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)
	handler := RateLimitMiddleware(rl, GetIPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	req.RemoteAddr = "203.0.113.7:51000"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
