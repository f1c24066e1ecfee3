package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// RateLimitConfig bounds how often one client may hit a credential route.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig is used for login and registration when nothing is
// configured.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 5,
		BurstSize:         20,
	}
}

// A bucket idle for this long has refilled completely and can be dropped.
const bucketIdleAfter = 10 * time.Minute

type bucket struct {
	tokens float64
	seen   time.Time
}

// attemptLimiter keeps one token bucket per client and route.
type attemptLimiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastPrune time.Time
}

func newAttemptLimiter(cfg RateLimitConfig) *attemptLimiter {
	return &attemptLimiter{
		rate:    cfg.RequestsPerSecond,
		burst:   float64(cfg.BurstSize),
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// take spends one token for key. When none is left it reports how long the
// caller has to wait for the next one.
func (l *attemptLimiter) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, seen: now}
		l.buckets[key] = b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.seen).Seconds()*l.rate)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, time.Second
	}
	return false, time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
}

func (l *attemptLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < bucketIdleAfter {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.seen) >= bucketIdleAfter {
			delete(l.buckets, key)
		}
	}
	l.lastPrune = now
}

func (l *attemptLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimit throttles a route per client IP. Login and registration get
// separate budgets, so failed logins never block a sign-up.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimit(newAttemptLimiter(cfg), cfg)
}

func rateLimit(l *attemptLimiter, cfg RateLimitConfig) echo.MiddlewareFunc {
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)

			ok, wait := l.take(c.RealIP() + " " + c.Path())
			if ok {
				return next(c)
			}
			h.Set("X-RateLimit-Remaining", "0")
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			return apperr.New(http.StatusTooManyRequests, "rate-limited", "too many requests, retry later")
		}
	}
}
