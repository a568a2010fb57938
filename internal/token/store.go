package token

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Token is the externally issued bearer credential plus everything needed to
// keep it usable. A token with no stored expiry is unconditionally stale.
type Token struct {
	Value        string
	Tenant       string
	ExpiresAt    time.Time
	RefreshToken string
}

// Store persists the token across sessions. Implementations only need to
// guard against torn reads/writes; coordination of refreshes lives in the
// Manager.
type Store interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, t Token) error
}

type MemoryStore struct {
	mu  sync.Mutex
	tok Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tok, nil
}

func (s *MemoryStore) Save(_ context.Context, t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tok = t
	return nil
}

// RedisStore keeps the token in a hash under one key.
type RedisStore struct {
	rds *redis.Client
	key string
}

func NewRedisStore(rds *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "relay:token"
	}

	return &RedisStore{rds: rds, key: key}
}

func (s *RedisStore) Load(ctx context.Context) (Token, error) {
	vals, err := s.rds.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Token{}, err
	}

	t := Token{
		Value:        vals["value"],
		Tenant:       vals["tenant"],
		RefreshToken: vals["refresh_token"],
	}
	if raw := vals["expires_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			t.ExpiresAt = ts
		}
	}

	return t, nil
}

func (s *RedisStore) Save(ctx context.Context, t Token) error {
	fields := map[string]interface{}{
		"value":         t.Value,
		"tenant":        t.Tenant,
		"refresh_token": t.RefreshToken,
		"expires_at":    "",
	}
	if !t.ExpiresAt.IsZero() {
		fields["expires_at"] = t.ExpiresAt.UTC().Format(time.RFC3339)
	}

	return s.rds.HSet(ctx, s.key, fields).Err()
}
