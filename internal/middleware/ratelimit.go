package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// DefaultExemptPaths are never rate limited
var DefaultExemptPaths = []string{"/healthz", "/readyz", "/metrics"}

// RateLimiter keeps a token bucket per client IP
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client

	limit     rate.Limit
	burst     int
	window    time.Duration
	whitelist map[string]struct{}
	exempt    map[string]struct{}

	blocked  atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
	logger   *slog.Logger
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perWindow requests per window for each IP, refilled
// continuously. IPs in whitelist bypass the limiter. Stop releases the
// cleanup goroutine.
func NewRateLimiter(perWindow int, window time.Duration, whitelist []string, logger *slog.Logger) *RateLimiter {
	if perWindow < 1 {
		perWindow = 1
	}
	if window <= 0 {
		window = time.Minute
	}

	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}
	exempt := make(map[string]struct{}, len(DefaultExemptPaths))
	for _, p := range DefaultExemptPaths {
		exempt[p] = struct{}{}
	}

	rl := &RateLimiter{
		clients:   make(map[string]*client),
		limit:     rate.Limit(float64(perWindow) / window.Seconds()),
		burst:     perWindow,
		window:    window,
		whitelist: wl,
		exempt:    exempt,
		done:      make(chan struct{}),
		now:       time.Now,
		logger:    logger.With("component", "rate_limiter"),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.window * 2)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

// cleanup forgets clients idle for two windows; their bucket is full again by then
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.window*2 {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) IsWhitelisted(ip string) bool {
	_, ok := rl.whitelist[ip]
	return ok
}

// Allow reports whether a request from ip may proceed
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Blocked returns how many requests were rejected
func (rl *RateLimiter) Blocked() int64 {
	return rl.blocked.Load()
}

// Middleware returns an HTTP middleware that applies rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := rl.exempt[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := getClientIP(r)
		if rl.IsWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.Allow(ip) {
			rl.blocked.Add(1)
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			retryAfter := max(1, int(math.Ceil(1/float64(rl.limit))))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getClientIP(r *http.Request) string {
	// X-Forwarded-For is "client, proxy1, proxy2"
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
