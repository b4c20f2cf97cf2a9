package api

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter admits a bounded number of requests per client IP per
// window. Windows are fixed: the budget resets when the window opened
// by a client's first request expires.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientWindow
	limit     int
	window    time.Duration
	lastSweep time.Time
}

type clientWindow struct {
	count    int
	openedAt time.Time
}

// NewRateLimiter allows limit requests per window per client IP.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:   make(map[string]*clientWindow),
		limit:     limit,
		window:    window,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the client IP still has budget in its current
// window, opening a fresh window when the previous one has expired.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweepLocked(now)

	w, ok := rl.clients[ip]
	if !ok || now.Sub(w.openedAt) >= rl.window {
		rl.clients[ip] = &clientWindow{count: 1, openedAt: now}
		return true
	}
	if w.count < rl.limit {
		w.count++
		return true
	}
	return false
}

// RetryAfter returns whole seconds until the client's window resets.
func (rl *RateLimiter) RetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.clients[ip]
	if !ok {
		return 0
	}
	remaining := rl.window - time.Since(w.openedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining/time.Second) + 1
}

// sweepLocked drops expired windows. Running inline on Allow keeps the
// map bounded without a background goroutine to stop.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now
	for ip, w := range rl.clients {
		if now.Sub(w.openedAt) >= rl.window {
			delete(rl.clients, ip)
		}
	}
}

// clientIP identifies the caller, trusting the first X-Forwarded-For
// entry when a proxy set one.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects requests beyond the per-IP budget with
// 429 and a Retry-After hint.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			slog.Warn("command rate limited", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(ip)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
