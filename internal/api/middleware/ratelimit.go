package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/eldtechnologies/simpleremote/internal/metrics"
)

// RateLimit defines the budget of one endpoint.
type RateLimit struct {
	Name     string
	Requests int
	Window   time.Duration
}

var (
	LoginLimit    = RateLimit{Name: "login", Requests: 10, Window: time.Minute}
	ExternalLimit = RateLimit{Name: "external", Requests: 60, Window: time.Minute}
)

// Counter records a hit for key and reports whether it is within limit.
// store.RedisStore implements it with a sliding window.
type Counter interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, resetAt time.Time, err error)
}

// RateLimiter applies per-IP limits to selected routes.
type RateLimiter struct {
	counter   Counter
	logger    zerolog.Logger
	whitelist *IPList
}

// NewRateLimiter creates a rate limiter. A nil counter uses an in-memory
// token bucket per key.
func NewRateLimiter(counter Counter, whitelist *IPList, logger zerolog.Logger) *RateLimiter {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if whitelist.Len() > 0 {
		logger.Info().Int("entries", whitelist.Len()).Msg("rate limit whitelist configured")
	}
	return &RateLimiter{counter: counter, logger: logger, whitelist: whitelist}
}

// Limit returns middleware enforcing limit per client IP.
func (rl *RateLimiter) Limit(limit RateLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := RealIP(r)

			// Skip rate limiting for whitelisted IPs
			if rl.whitelist.Contains(ip) {
				next.ServeHTTP(w, r)
				return
			}

			key := limit.Name + ":ip:" + ip
			allowed, remaining, resetAt, err := rl.counter.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)
			if err != nil {
				// Fail open: a broken limiter backend must not lock the operator out.
				rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retry := int(math.Ceil(time.Until(resetAt).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				metrics.RateLimitHits.WithLabelValues(limit.Name).Inc()

				rl.logger.Warn().
					Str("type", "security").
					Str("event", "rate_limit_exceeded").
					Str("ip", ip).
					Str("endpoint", r.URL.Path).
					Str("key", key).
					Msg("rate limit exceeded")

				jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MemoryCounter is a Counter backed by one token bucket per key. Buckets
// idle for longer than their window are swept.
type MemoryCounter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// NewMemoryCounter creates an in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{buckets: make(map[string]*bucket), now: time.Now}
}

func (c *MemoryCounter) CheckAndIncrement(_ context.Context, key string, limit int, window time.Duration) (bool, int, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	b, ok := c.buckets[key]
	if !ok {
		every := window / time.Duration(limit)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(every), limit), window: window}
		c.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	// Time until one whole token is available again.
	missing := 1 - tokens
	if missing < 0 {
		missing = 0
	}
	resetAt := now.Add(time.Duration(missing * float64(window) / float64(limit)))
	return allowed, remaining, resetAt, nil
}

func (c *MemoryCounter) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < time.Minute {
		return
	}
	c.lastSweep = now
	for key, b := range c.buckets {
		if now.Sub(b.lastSeen) > b.window {
			delete(c.buckets, key)
		}
	}
}
