package sophia

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenKey is the single shared record holding the token for every server
// process.
const tokenKey = "sophia:token"

// TokenStore persists the cached token record. Implementations must be safe
// for use from multiple processes; last write wins.
type TokenStore interface {
	// Load returns the stored token and its expiry. A missing record is
	// reported as an empty token with no error.
	Load(ctx context.Context) (token string, expiresAt time.Time, err error)
	Save(ctx context.Context, token string, expiresAt time.Time) error
}

// RedisTokenStore keeps the record in a redis hash shared by all instances.
type RedisTokenStore struct {
	client *redis.Client
	key    string
}

// NewRedisTokenStore builds a store over an existing client.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, key: tokenKey}
}

// Load implements TokenStore.
func (s *RedisTokenStore) Load(ctx context.Context) (string, time.Time, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("reading token record: %w", err)
	}
	token := fields["token"]
	if token == "" {
		return "", time.Time{}, nil
	}
	unix, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		// Corrupt record: treat as missing so the caller renews.
		return "", time.Time{}, nil
	}
	return token, time.Unix(unix, 0), nil
}

// Save implements TokenStore.
func (s *RedisTokenStore) Save(ctx context.Context, token string, expiresAt time.Time) error {
	err := s.client.HSet(ctx, s.key,
		"token", token,
		"expires_at", strconv.FormatInt(expiresAt.Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("writing token record: %w", err)
	}
	return nil
}

// MemoryTokenStore is a process-local store for tests and redis-less dev.
type MemoryTokenStore struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Load implements TokenStore.
func (s *MemoryTokenStore) Load(_ context.Context) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.expiresAt, nil
}

// Save implements TokenStore.
func (s *MemoryTokenStore) Save(_ context.Context, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = expiresAt
	return nil
}
