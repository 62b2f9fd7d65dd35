package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(2), 2)
	defer rl.Stop()
	handler := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	makeRequest := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/webhooks/paystack", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	ip := "192.168.1.1"
	assert.Equal(t, http.StatusOK, makeRequest(ip).Code)
	assert.Equal(t, http.StatusOK, makeRequest(ip).Code)

	// request will be ratelimited here
	limited := makeRequest(ip)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))

	// different IP should pass
	assert.Equal(t, http.StatusOK, makeRequest("192.168.1.2").Code)
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 1)
	defer rl.Stop()

	rl.getVisitor("10.0.0.1")
	rl.evictIdle(time.Now())
	assert.Len(t, rl.visitors, 1)

	rl.evictIdle(time.Now().Add(visitorIdleTimeout + time.Second))
	assert.Empty(t, rl.visitors)
}
