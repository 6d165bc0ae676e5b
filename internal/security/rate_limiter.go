// Package security guards the HTTP API against request floods.
package security

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raaihank/pdn-sentinel/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	config  *config.SecurityConfig
	clients map[string]*clientLimiter
	mu      sync.Mutex
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.SecurityConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	if !r.config.RateLimit.Enabled {
		return true
	}
	return r.limiter(clientIP).Allow()
}

// Middleware rejects requests over the limit with 429
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.Allow(ClientIP(req)) {
			w.Header().Set("Retry-After", strconv.Itoa(r.retryAfter()))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) limiter(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientIP]
	if !ok {
		perMin := r.config.RateLimit.RequestsPerMin
		burst := r.config.RateLimit.Burst
		if burst <= 0 {
			burst = perMin
		}
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), burst)}
		r.clients[clientIP] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

func (r *RateLimiter) retryAfter() int {
	perMin := r.config.RateLimit.RequestsPerMin
	if perMin <= 0 {
		return 60
	}
	return max(1, 60/perMin)
}

// Clients returns the number of tracked client IPs
func (r *RateLimiter) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CleanupOldBuckets removes limiters not used since the cutoff
func (r *RateLimiter) CleanupOldBuckets(idle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
}

// StartCleanupRoutine drops idle limiters until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
