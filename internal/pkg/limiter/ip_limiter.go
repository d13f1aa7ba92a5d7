/*
Package limiter provides per-IP request rate limiting for the abuse-prone
endpoints: registration, login and the websocket upgrade.

Each client IP gets its own token bucket (rate.Limiter); buckets that refill
completely are dropped by a background sweep so the map does not grow with
every visitor ever seen.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/resp"

	"golang.org/x/time/rate"
)

// cleanupInterval is how often full, idle buckets are swept away.
const cleanupInterval = 3 * time.Minute

// IPRateLimiter maps client IPs to their token buckets.
type IPRateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter

	// r and b are the refill rate and burst size applied to every bucket.
	r rate.Limit
	b int
}

// NewIPRateLimiter creates a limiter with the given refill rate and burst
// size and starts its cleanup sweep.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	l := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
	}

	go l.cleanUpVisitors()

	return l
}

// GetLimiter returns the bucket for the given IP, creating it on first sight.
// Double-checked so concurrent first requests from one IP share a bucket.
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limits[ip]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limits[ip]
		if !exists {
			limiter = rate.NewLimiter(l.r, l.b)
			l.limits[ip] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// cleanUpVisitors periodically drops buckets that have refilled to capacity.
// A full bucket means the IP has been quiet long enough to forget.
func (l *IPRateLimiter) cleanUpVisitors() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		removed := 0
		for ip, limiter := range l.limits {
			if limiter.TokensAt(time.Now()) >= float64(limiter.Burst()) {
				delete(l.limits, ip)
				removed++
			}
		}
		remaining := len(l.limits)
		l.mu.Unlock()

		logx.Info("Rate limiter cleanup finished", "removed", removed, "active", remaining)
	}
}

// Middleware wraps next with the rate check, answering 429 via the standard
// error envelope when the client's bucket is empty.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !l.GetLimiter(ip).Allow() {
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
