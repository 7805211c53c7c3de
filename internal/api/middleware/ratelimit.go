package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-IP request throttling.
type RateLimitConfig struct {
	// Rate is the number of requests allowed per second per IP.
	Rate rate.Limit
	// Burst is the maximum burst size per IP.
	Burst int
	// MaxIdle is how long an unused limiter survives before pruning.
	MaxIdle time.Duration
}

// APIRateLimitConfig throttles general control API traffic. A single UI
// polling call state stays far below this; a runaway client does not.
func APIRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:    rate.Limit(20),
		Burst:   40,
		MaxIdle: 10 * time.Minute,
	}
}

// LoginRateLimitConfig throttles /auth/login hard: there is exactly one
// control password, so anything beyond a slow trickle is a guessing attempt.
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Rate:    rate.Limit(1),
		Burst:   5,
		MaxIdle: 10 * time.Minute,
	}
}

// pruneThreshold is the table size past which stale limiters are pruned.
// The agent binds to loopback, so the client set is tiny and a background
// cleanup goroutine is not worth carrying; pruning happens inline instead.
const pruneThreshold = 64

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter throttles requests per client IP.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipEntry
	cfg     RateLimitConfig
}

// NewIPRateLimiter creates a per-IP rate limiter.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	return &IPRateLimiter{
		entries: make(map[string]*ipEntry),
		cfg:     cfg,
	}
}

// Allow reports whether a request from the given IP may proceed.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	entry, ok := rl.entries[ip]
	if !ok {
		if len(rl.entries) >= pruneThreshold {
			rl.pruneLocked()
		}
		entry = &ipEntry{limiter: rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)}
		rl.entries[ip] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// pruneLocked drops limiters idle longer than MaxIdle; callers hold rl.mu.
func (rl *IPRateLimiter) pruneLocked() {
	cutoff := time.Now().Add(-rl.cfg.MaxIdle)
	for ip, entry := range rl.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.entries, ip)
		}
	}
}

// RateLimit returns middleware that throttles requests by client IP,
// answering 429 with a Retry-After header when the limit is exceeded.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !limiter.Allow(ip) {
				slog.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", "1")
				writeEnvelopeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port from RemoteAddr. The chi RealIP middleware runs
// first, so RemoteAddr already reflects X-Forwarded-For / X-Real-IP when a
// reverse proxy fronts the agent.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
