package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/httputil"
)

const (
	limiterIdle     = 3 * time.Minute
	cleanupInterval = time.Minute
)

type ipLimiter struct {
	limiter *rate.Limiter
	// lastSeen is unix nanoseconds, read by the cleanup goroutine.
	lastSeen atomic.Int64
}

func (e *ipLimiter) touch(now time.Time) { e.lastSeen.Store(now.UnixNano()) }

func (e *ipLimiter) idle(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, e.lastSeen.Load()))
}

// RateLimiter enforces a per-client token bucket.
type RateLimiter struct {
	rps        float64
	burst      int
	trustProxy bool

	limiters sync.Map
	stopOnce sync.Once
	stopCh   chan struct{}
}

type RateLimitOption func(*RateLimiter)

// TrustForwardedFor keys clients by the first X-Forwarded-For address. Only
// enable it behind a proxy that overwrites the header.
func TrustForwardedFor() RateLimitOption {
	return func(l *RateLimiter) { l.trustProxy = true }
}

// NewRateLimiter starts a limiter allowing rps sustained requests per second
// with bursts of burst. Stop releases its cleanup goroutine.
func NewRateLimiter(rps float64, burst int, opts ...RateLimitOption) *RateLimiter {
	l := &RateLimiter{rps: rps, burst: burst, stopCh: make(chan struct{})}
	for _, opt := range opts {
		opt(l)
	}
	go l.cleanup()
	return l
}

func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Middleware answers 429 once the client's bucket is empty.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiterFor(l.clientIP(r)).Allow() {
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) limiterFor(ip string) *rate.Limiter {
	now := time.Now()
	if v, ok := l.limiters.Load(ip); ok {
		entry := v.(*ipLimiter)
		entry.touch(now)
		return entry.limiter
	}

	entry := &ipLimiter{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
	entry.touch(now)
	actual, loaded := l.limiters.LoadOrStore(ip, entry)
	if loaded {
		actual.(*ipLimiter).touch(now)
	}
	return actual.(*ipLimiter).limiter
}

func (l *RateLimiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.evict(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *RateLimiter) evict(now time.Time) {
	l.limiters.Range(func(key, value any) bool {
		if value.(*ipLimiter).idle(now) > limiterIdle {
			l.limiters.Delete(key)
		}
		return true
	})
}

func (l *RateLimiter) clientIP(r *http.Request) string {
	if l.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port.
		return r.RemoteAddr
	}
	return ip
}
