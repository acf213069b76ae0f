// internal/app/system/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a keyed token-bucket limiter. Each key gets its own bucket that
// refills to limit tokens over duration. It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	idle    time.Duration
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New allows limit events per duration per key, with bursts up to limit.
func New(limit int, duration time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(float64(limit) / duration.Seconds()),
		burst:   limit,
		idle:    duration * 2,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Remaining reports how many events key could make right now.
func (l *Limiter) Remaining(key string) int {
	n := int(l.get(key).Tokens())
	if n < 0 {
		return 0
	}
	return n
}

// Reset forgets key, restoring a full bucket.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Stop ends the background cleanup.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.lim
}

// cleanupLoop drops buckets idle long enough to have refilled completely.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-l.idle)
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// ClientIP extracts the client IP from an HTTP request, preferring the
// first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// LoginLimiter limits sign-in attempts both per client IP and per employee
// code, so neither spraying from many IPs nor hammering one account works.
type LoginLimiter struct {
	ipLimiter       *Limiter
	employeeLimiter *Limiter
}

// NewLoginLimiter uses 10 attempts per IP per minute and 5 per employee code
// per 5 minutes.
func NewLoginLimiter() *LoginLimiter {
	return NewLoginLimiterWithConfig(10, time.Minute, 5, 5*time.Minute)
}

// NewLoginLimiterWithConfig creates a login limiter with custom limits.
func NewLoginLimiterWithConfig(ipLimit int, ipDuration time.Duration, employeeLimit int, employeeDuration time.Duration) *LoginLimiter {
	return &LoginLimiter{
		ipLimiter:       New(ipLimit, ipDuration),
		employeeLimiter: New(employeeLimit, employeeDuration),
	}
}

func employeeKey(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

// Check reports whether a sign-in attempt may proceed and, if not, a
// user-facing reason.
func (ll *LoginLimiter) Check(r *http.Request, employeeID string) (bool, string) {
	if !ll.ipLimiter.Allow(ClientIP(r)) {
		return false, "登入嘗試次數過多，請一分鐘後再試"
	}
	if employeeID != "" && !ll.employeeLimiter.Allow(employeeKey(employeeID)) {
		return false, "此帳號登入嘗試次數過多，請稍後再試"
	}
	return true, ""
}

// ResetEmployee clears the per-account limit after a successful sign-in.
func (ll *LoginLimiter) ResetEmployee(employeeID string) {
	if employeeID != "" {
		ll.employeeLimiter.Reset(employeeKey(employeeID))
	}
}

// Stop ends both limiters' cleanup loops.
func (ll *LoginLimiter) Stop() {
	ll.ipLimiter.Stop()
	ll.employeeLimiter.Stop()
}
