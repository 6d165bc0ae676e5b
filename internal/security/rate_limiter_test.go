package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/raaihank/pdn-sentinel/internal/config"
)

func limiterConfig(enabled bool, perMin, burst int) *config.SecurityConfig {
	cfg := &config.SecurityConfig{}
	cfg.RateLimit.Enabled = enabled
	cfg.RateLimit.RequestsPerMin = perMin
	cfg.RateLimit.Burst = burst
	return cfg
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(limiterConfig(true, 1, 2))

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("burst requests should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}
	if rl.Clients() != 2 {
		t.Errorf("clients = %d", rl.Clients())
	}

	rl.CleanupOldBuckets(-time.Second)
	if rl.Clients() != 0 {
		t.Errorf("cleanup left %d clients", rl.Clients())
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(limiterConfig(false, 1, 1))
	for i := 0; i < 10; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatal("disabled limiter must allow everything")
		}
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(limiterConfig(true, 1, 1))
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/scan", nil)
	req.RemoteAddr = "192.0.2.1:5555"

	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	if first.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d", second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", second.Header().Get("Retry-After"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := ClientIP(req); got != "192.0.2.1" {
		t.Errorf("remote addr = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("forwarded = %q", got)
	}
}
