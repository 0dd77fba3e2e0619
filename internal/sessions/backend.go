package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sashimi3433/Attendance-Check/internal/models"
)

const keyPrefix = "session:"

// Backend stores session records. A record that has expired must read as absent.
type Backend interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, id string) error
}

// RedisBackend keeps sessions as JSON under session:<id> with a TTL matching their expiry.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a Redis session backend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Create(ctx context.Context, s *models.Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ok, err := b.client.SetNX(ctx, keyPrefix+s.ID, body, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return errors.New("session id collision")
	}
	return nil
}

func (b *RedisBackend) Get(ctx context.Context, id string) (*models.Session, error) {
	body, err := b.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	return b.client.Del(ctx, keyPrefix+id).Err()
}

// MemoryBackend is an in-process Backend for tests and single-instance development.
type MemoryBackend struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]models.Session
}

// NewMemoryBackend creates an empty in-memory backend. A nil now uses time.Now.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{now: now, sessions: make(map[string]models.Session)}
}

func (b *MemoryBackend) Create(_ context.Context, s *models.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[s.ID]; ok {
		return errors.New("session id collision")
	}
	b.sessions[s.ID] = *s
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, id string) (*models.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !b.now().Before(s.ExpiresAt) {
		delete(b.sessions, id)
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (b *MemoryBackend) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
	return nil
}
