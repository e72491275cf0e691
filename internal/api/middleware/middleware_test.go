package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPList(t *testing.T) {
	l := ParseIPList([]string{"127.0.0.1", "::1", "10.0.0.0/8", "bogus", "300.1.1.1/8", ""}, zerolog.Nop())
	assert.Equal(t, 3, l.Len())

	assert.True(t, l.Contains("127.0.0.1"))
	assert.True(t, l.Contains("::ffff:127.0.0.1"))
	assert.True(t, l.Contains("::1"))
	assert.True(t, l.Contains("10.20.30.40"))
	assert.False(t, l.Contains("192.168.1.1"))
	assert.False(t, l.Contains("not-an-ip"))

	var empty *IPList
	assert.False(t, empty.Contains("127.0.0.1"))
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.168.1.5:5555"
	assert.Equal(t, "192.168.1.5", RealIP(r))
	assert.Equal(t, "192.168.1.5", peerIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", RealIP(r))
	assert.Equal(t, "192.168.1.5", peerIP(r))
}

func TestMemoryCounter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCounter()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _, err := c.CheckAndIncrement(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, _, resetAt, err := c.CheckAndIncrement(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.True(t, resetAt.After(now))

	allowed, _, _, _ = c.CheckAndIncrement(ctx, "other", 3, time.Minute)
	assert.True(t, allowed, "keys are independent")

	now = now.Add(20 * time.Second)
	allowed, _, _, _ = c.CheckAndIncrement(ctx, "k", 3, time.Minute)
	assert.True(t, allowed, "one token refills per window/limit")

	now = now.Add(2 * time.Minute)
	_, _, _, _ = c.CheckAndIncrement(ctx, "fresh", 3, time.Minute)
	assert.NotContains(t, c.buckets, "k", "idle buckets are swept")
}

func TestRateLimiterRejects(t *testing.T) {
	rl := NewRateLimiter(nil, nil, zerolog.Nop())
	h := rl.Limit(RateLimit{Name: "test", Requests: 1, Window: time.Minute})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"ok":false,"error":"rate limit exceeded"}`, rec.Body.String())
}

type failingCounter struct{}

func (failingCounter) CheckAndIncrement(context.Context, string, int, time.Duration) (bool, int, time.Time, error) {
	return false, 0, time.Time{}, assert.AnError
}

func TestRateLimiterFailsOpen(t *testing.T) {
	rl := NewRateLimiter(failingCounter{}, nil, zerolog.Nop())
	h := rl.Limit(LoginLimit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("12345")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/alerts/:id", normalizePath("/api/alerts/01HZX"))
	assert.Equal(t, "/api/alerts/clear", normalizePath("/api/alerts/clear"))
	assert.Equal(t, "/api/alerts", normalizePath("/api/alerts"))
	assert.Equal(t, "other", normalizePath("/wp-login.php"))
}
