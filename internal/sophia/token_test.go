package sophia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthServer(t *testing.T, token string, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/Autenticacao" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		_, _ = w.Write([]byte(token + "\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTokenCacheHitMakesNoNetworkCall(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, "abc123", &calls)

	store := &MemoryTokenStore{}
	now := time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(context.Background(), "cached-token", now.Add(10*time.Minute)))

	tc := NewTokenCache(New(srv.URL), Credentials{User: "svc", Password: "pw"}, store, 29*time.Minute, 45*time.Second)
	tc.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		tok, err := tc.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "cached-token", tok)
	}
	assert.Equal(t, int64(0), calls.Load())
}

func TestTokenCacheRenewsWithinSafetyMargin(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, "fresh-token", &calls)

	store := &MemoryTokenStore{}
	now := time.Date(2026, time.May, 4, 12, 0, 0, 0, time.UTC)
	// Expires in 20s, margin is 45s: must renew.
	require.NoError(t, store.Save(context.Background(), "stale-token", now.Add(20*time.Second)))

	tc := NewTokenCache(New(srv.URL), Credentials{User: "svc", Password: "pw"}, store, 29*time.Minute, 45*time.Second)
	tc.now = func() time.Time { return now }

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", tok)
	assert.Equal(t, int64(1), calls.Load())

	savedTok, savedExp, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", savedTok)
	assert.Equal(t, now.Add(29*time.Minute), savedExp)
}

func TestTokenCacheConcurrentExpiredSingleAuthCall(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, "fresh-token", &calls)

	tc := NewTokenCache(New(srv.URL), Credentials{User: "svc", Password: "pw"}, &MemoryTokenStore{}, 29*time.Minute, 45*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := tc.Token(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "fresh-token", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), calls.Load())
}

func TestTokenCacheNoCredentials(t *testing.T) {
	tc := NewTokenCache(New(""), Credentials{}, &MemoryTokenStore{}, 0, 0)
	_, err := tc.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestTokenCacheAuthFailureSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tc := NewTokenCache(New(srv.URL), Credentials{User: "svc", Password: "wrong"}, &MemoryTokenStore{}, 0, 0)
	_, err := tc.Token(context.Background())
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestAuthenticateTrimsTokenBody(t *testing.T) {
	var calls atomic.Int64
	srv := newAuthServer(t, "tok-with-newline", &calls)

	tok, err := New(srv.URL).Authenticate(context.Background(), "svc", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-with-newline", tok)
}
