package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig limits each client to Max requests per Window.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// limiter is a generic cell rate algorithm: every client owns a theoretical
// arrival time that advances by Window/Max per accepted request. A request is
// accepted while that time stays within one Window of now, which allows a
// burst of Max and then a steady Max per Window.
type limiter struct {
	max      int
	window   time.Duration
	interval time.Duration
	key      func(*http.Request) string
	now      func() time.Time

	mu  sync.Mutex
	tat map[string]time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.Max <= 0 {
		cfg.Max = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &limiter{
		max:      cfg.Max,
		window:   cfg.Window,
		interval: cfg.Window / time.Duration(cfg.Max),
		key:      cfg.KeyFunc,
		now:      time.Now,
		tat:      make(map[string]time.Time),
	}
}

type verdict struct {
	allowed    bool
	remaining  int
	reset      time.Time
	retryAfter time.Duration
}

func (l *limiter) take(key string) verdict {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	tat := l.tat[key]
	if tat.Before(now) {
		tat = now
	}
	next := tat.Add(l.interval)
	if earliest := next.Add(-l.window); now.Before(earliest) {
		return verdict{
			reset:      tat,
			retryAfter: earliest.Sub(now),
		}
	}
	l.tat[key] = next

	return verdict{
		allowed:   true,
		remaining: int((l.window - next.Sub(now)) / l.interval),
		reset:     next,
	}
}

// sweep forgets clients whose arrival time has already passed; they would
// start from a fresh bucket anyway.
func (l *limiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, tat := range l.tat {
		if tat.Before(now) {
			delete(l.tat, key)
		}
	}
}

func (l *limiter) sweepEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

// RateLimit rejects clients over the configured rate with 429 and the
// standard X-RateLimit headers. Client state is never evicted; long running
// servers should use RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine, bound to ctx, that
// evicts idle clients once per Window.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.sweepEvery(ctx, l.window)
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(l.max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := l.take(l.key(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(v.reset.Unix(), 10))

		if !v.allowed {
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(v.retryAfter.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
