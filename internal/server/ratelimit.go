package server

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/gauge/internal/clock"
	"github.com/thruflo/gauge/internal/config"
	"github.com/thruflo/gauge/internal/logging"
)

// rateLimiter implements a per-IP sliding window rate limiter.
type rateLimiter struct {
	mu     sync.Mutex
	config config.RateLimit
	clock  clock.Clock
	log    *logging.Logger

	// attempts tracks timestamps of requests per IP
	attempts map[string][]time.Time
}

// newRateLimiter creates a new rate limiter with the given configuration.
func newRateLimiter(cfg config.RateLimit, clk clock.Clock, log *logging.Logger) *rateLimiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = config.DefaultRateLimitRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = config.DefaultRateLimitWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logging.Default()
	}

	return &rateLimiter{
		config:   cfg,
		clock:    clk,
		log:      log,
		attempts: make(map[string][]time.Time),
	}
}

// checkResult represents the result of a rate limit check.
type checkResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // How long until the client can retry
}

// check records a request from ip if it fits in the window.
func (rl *rateLimiter) check(ip string) checkResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	valid := rl.prune(ip, now)

	if len(valid) >= rl.config.MaxRequests {
		// The oldest request in the window is the next to expire.
		retryAfter := valid[0].Add(rl.config.Window).Sub(now)
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return checkResult{RetryAfter: retryAfter}
	}

	rl.attempts[ip] = append(valid, now)
	return checkResult{
		Allowed:   true,
		Remaining: rl.config.MaxRequests - len(valid) - 1,
	}
}

// prune drops timestamps outside the window and returns what remains.
func (rl *rateLimiter) prune(ip string, now time.Time) []time.Time {
	windowStart := now.Add(-rl.config.Window)
	timestamps := rl.attempts[ip]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			valid = append(valid, ts)
		}
	}
	if len(valid) == 0 {
		delete(rl.attempts, ip)
		return nil
	}
	rl.attempts[ip] = valid
	return valid
}

// cleanup removes IPs with no requests inside the window.
func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for ip := range rl.attempts {
		rl.prune(ip, now)
	}
}

// tracked returns the number of IPs with requests in the window.
func (rl *rateLimiter) tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.attempts)
}

// cleanupLoop runs cleanup once per window until ctx is done.
func (rl *rateLimiter) cleanupLoop(ctx context.Context) {
	ticker := rl.clock.NewTicker(rl.config.Window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			rl.cleanup()
		}
	}
}

// middleware rejects requests over the limit with 429 and a Retry-After
// header in whole seconds.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		result := rl.check(ip)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.MaxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			rl.log.Warn("rate limited", "ip", ip, "path", r.URL.Path, "retry_after", result.RetryAfter)
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractIP extracts the client IP from the request.
// It checks X-Forwarded-For and X-Real-IP headers first (for reverse proxy scenarios),
// then falls back to the remote address.
func extractIP(r *http.Request) string {
	// X-Forwarded-For can be "client, proxy1, proxy2"
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		client, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(client)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}
