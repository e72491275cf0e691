package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/eldtechnologies/simpleremote/internal/models"
	"github.com/eldtechnologies/simpleremote/internal/store"
)

// SessionStore issues and validates opaque session tokens.
type SessionStore interface {
	Create(ctx context.Context, user string) (models.Session, error)
	// Get returns the live session for token; ok is false when it is
	// unknown or expired.
	Get(ctx context.Context, token string) (sess models.Session, ok bool, err error)
	Delete(ctx context.Context, token string) error
}

// newToken returns 32 random bytes, URL-safe base64 encoded.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MemorySessions keeps sessions in process memory. Expired sessions are
// dropped when looked up and swept on every Create.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemorySessions creates an in-memory session store.
func NewMemorySessions(ttl time.Duration) *MemorySessions {
	return &MemorySessions{
		sessions: map[string]models.Session{},
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemorySessions) Create(ctx context.Context, user string) (models.Session, error) {
	token, err := newToken()
	if err != nil {
		return models.Session{}, err
	}
	now := m.now()
	sess := models.Session{Token: token, User: user, ExpiresAt: now.Add(m.ttl)}

	m.mu.Lock()
	defer m.mu.Unlock()
	for t, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, t)
		}
	}
	m.sessions[token] = sess
	return sess, nil
}

func (m *MemorySessions) Get(ctx context.Context, token string) (models.Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok {
		return models.Session{}, false, nil
	}
	if sess.Expired(m.now()) {
		delete(m.sessions, token)
		return models.Session{}, false, nil
	}
	return sess, true, nil
}

func (m *MemorySessions) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// RedisSessions keeps sessions in Redis with a key TTL.
type RedisSessions struct {
	redis *store.RedisStore
	ttl   time.Duration
}

// NewRedisSessions creates a Redis-backed session store.
func NewRedisSessions(redis *store.RedisStore, ttl time.Duration) *RedisSessions {
	return &RedisSessions{redis: redis, ttl: ttl}
}

func (r *RedisSessions) Create(ctx context.Context, user string) (models.Session, error) {
	token, err := newToken()
	if err != nil {
		return models.Session{}, err
	}
	sess := models.Session{Token: token, User: user, ExpiresAt: time.Now().Add(r.ttl)}
	if err := r.redis.PutSession(ctx, sess); err != nil {
		return models.Session{}, err
	}
	return sess, nil
}

func (r *RedisSessions) Get(ctx context.Context, token string) (models.Session, bool, error) {
	sess, err := r.redis.GetSession(ctx, token)
	if err != nil || sess == nil {
		return models.Session{}, false, err
	}
	if sess.Expired(time.Now()) {
		return models.Session{}, false, nil
	}
	return *sess, true, nil
}

func (r *RedisSessions) Delete(ctx context.Context, token string) error {
	return r.redis.DeleteSession(ctx, token)
}

// CookieName is the session cookie set on login.
const CookieName = "sr.sid"
