package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Store persists sessions by id. Entries expire after the store's max age,
// counted from the last Save.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process. Suitable for a single instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	maxAge  time.Duration
	clock   clockwork.Clock
}

func NewMemoryStore(maxAge time.Duration, clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		maxAge:  maxAge,
		clock:   clock,
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	s := e.session
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[s.ID] = memoryEntry{session: *s, expiresAt: m.clock.Now().Add(m.maxAge)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// RedisStore keeps sealed session payloads in Redis with a TTL.
type RedisStore struct {
	rdb    *goredis.Client
	sealer *Sealer
	maxAge time.Duration
}

func NewRedisStore(rdb *goredis.Client, sealer *Sealer, maxAge time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, sealer: sealer, maxAge: maxAge}
}

func sessionKey(id string) string {
	return "streamcatch:session:" + id
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	plaintext, err := r.sealer.Open(raw)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(plaintext, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	plaintext, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	sealed, err := r.sealer.Seal(plaintext)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, sessionKey(s.ID), sealed, r.maxAge).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// NewRedisClient creates a go-redis client from a URL (e.g. "redis://localhost:6379").
func NewRedisClient(redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return goredis.NewClient(opts), nil
}
