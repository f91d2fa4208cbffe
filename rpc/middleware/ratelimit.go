package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit caps request throughput per source address.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// RateLimiter tracks one token bucket per visitor.
type RateLimiter struct {
	limit    RateLimit
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

func NewRateLimiter(limit RateLimit) *RateLimiter {
	if limit.RequestsPerMinute <= 0 {
		limit.RequestsPerMinute = 600
	}
	if limit.Burst <= 0 {
		limit.Burst = 20
	}
	return &RateLimiter{
		limit:    limit,
		visitors: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the request from the given source may proceed.
func (r *RateLimiter) Allow(source string) bool {
	r.mu.Lock()
	limiter, ok := r.visitors[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(r.limit.RequestsPerMinute/60.0), r.limit.Burst)
		r.visitors[source] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}

// ClientID derives the rate-limiting identity for a request, preferring the
// first X-Forwarded-For hop when present.
func ClientID(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
