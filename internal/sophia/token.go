package sophia

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrNoCredentials means the upstream API is not configured; callers must
// treat the feature as unavailable rather than retry.
var ErrNoCredentials = errors.New("sophia credentials not configured")

// Credentials are the service account used against the authentication
// endpoint.
type Credentials struct {
	User     string
	Password string
}

// TokenCache hands out a valid bearer token for the SophiA API, renewing it
// at most once per expiry. The mutex serializes check-then-renew within this
// process; across processes the shared TokenStore record is the source of
// truth, so a brief duplicate renewal between two instances is possible and
// tolerated (renewal is idempotent for callers).
type TokenCache struct {
	mu     sync.Mutex
	client *Client
	creds  Credentials
	store  TokenStore
	ttl    time.Duration
	margin time.Duration
	now    func() time.Time
}

// NewTokenCache builds a cache over the given client and store. Zero ttl
// defaults to 29 minutes (the upstream token lives ~30); margin is clamped
// to at least 30 seconds.
func NewTokenCache(client *Client, creds Credentials, store TokenStore, ttl, margin time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = 29 * time.Minute
	}
	if margin < 30*time.Second {
		margin = 30 * time.Second
	}
	return &TokenCache{
		client: client,
		creds:  creds,
		store:  store,
		ttl:    ttl,
		margin: margin,
		now:    time.Now,
	}
}

// Token returns a token valid for at least the safety margin. Cache hits
// make no network call. On a miss it authenticates once; failures are not
// retried here, the next caller simply tries again.
func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	token, expiresAt, err := tc.store.Load(ctx)
	if err != nil {
		// A broken cache read forces renewal, it is not fatal.
		log.Printf("token cache read failed, renewing: %v", err)
	} else if token != "" && tc.now().Before(expiresAt.Add(-tc.margin)) {
		return token, nil
	}

	if tc.client == nil || tc.client.BaseURL == "" || tc.creds.User == "" {
		return "", ErrNoCredentials
	}

	token, err = tc.client.Authenticate(ctx, tc.creds.User, tc.creds.Password)
	if err != nil {
		return "", err
	}

	expiresAt = tc.now().Add(tc.ttl)
	if err := tc.store.Save(ctx, token, expiresAt); err != nil {
		return "", fmt.Errorf("persisting token: %w", err)
	}
	return token, nil
}
