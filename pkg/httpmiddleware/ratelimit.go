package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the sliding window duration.
	Window time.Duration
	// KeyFunc derives the limiter key from a request; defaults to client IP.
	KeyFunc func(*http.Request) string
}

// window tracks request counts across two adjacent fixed windows; the
// effective count weights the previous window by its remaining overlap with
// the sliding window, which smooths the boundary without storing timestamps
// per request.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type rateLimiter struct {
	cfg  RateLimitConfig
	mu   sync.Mutex
	keys map[string]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &rateLimiter{cfg: cfg, keys: make(map[string]*window)}
}

func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	win, exists := rl.keys[key]
	if !exists {
		win = &window{currStart: now}
		rl.keys[key] = win
	}

	elapsed := now.Sub(win.currStart)
	if elapsed >= rl.cfg.Window {
		if elapsed >= 2*rl.cfg.Window {
			win.prev = 0
		} else {
			win.prev = win.curr
		}
		win.curr = 0
		win.currStart = now.Truncate(rl.cfg.Window)
		elapsed = now.Sub(win.currStart)
	}

	overlap := 1 - elapsed.Seconds()/rl.cfg.Window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	effective := win.prev*overlap + win.curr
	resetAt = win.currStart.Add(rl.cfg.Window)

	if effective >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	win.curr++

	remaining = rl.cfg.Max - int(effective) - 1
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// evict drops keys whose windows have fully expired.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, win := range rl.keys {
		if now.Sub(win.currStart) >= 2*rl.cfg.Window {
			delete(rl.keys, key)
		}
	}
}

// RateLimit returns a middleware enforcing a per-key sliding window limit.
// Rejected requests get 429 with a JSON body; every response carries the
// X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitWith(newRateLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// stale keys until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.evict(now)
			}
		}
	}()
	return limitWith(rl)
}

func limitWith(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := rl.allow(rl.cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := time.Until(resetAt)
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client address from X-Forwarded-For, X-Real-IP, or
// RemoteAddr, in that order.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
