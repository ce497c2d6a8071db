package session

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/crypto"
)

func testCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	c, err := crypto.NewCipher(hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	return c
}

func TestFileStoreMissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope", "token"), nil)
	tok, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
	assert.NoError(t, s.Clear(context.Background()))
}

func TestFileStorePlainRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gmvdash", "token")
	s := NewFileStore(path, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "plain-token"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "plain-token", tok)

	require.NoError(t, s.Clear(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreEncrypted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	s := NewFileStore(path, testCipher(t))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "secret-token"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "secret-token"))
	assert.True(t, crypto.IsSealed(strings.TrimSpace(string(raw))))

	tok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", tok)

	// Without the key the sealed token is unreadable.
	_, err = NewFileStore(path, nil).Load(ctx)
	assert.ErrorIs(t, err, crypto.ErrNoKey)
}

func TestFileStoreReadsPlainTokenWithKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("legacy-token\n"), 0o600))

	tok, err := NewFileStore(path, testCipher(t)).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "legacy-token", tok)
}

func TestExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	got, ok := Expiry(signedToken(t, exp))
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = Expiry("opaque-token")
	assert.False(t, ok)
}

func TestWatchReloadsOnTokenFileChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	store := NewFileStore(path, nil)
	g := NewGuard(store, &fakeAuth{me: meReturns(manager)})
	require.NoError(t, g.Init(context.Background()))
	require.Equal(t, Unauthenticated, g.State())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx, path) }()
	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	// Another process logs in.
	require.NoError(t, NewFileStore(path, nil).Save(context.Background(), "from-cli"))
	require.Eventually(t, func() bool { return g.State() == Authenticated }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "from-cli", g.Token())

	// And logs out again.
	require.NoError(t, NewFileStore(path, nil).Clear(context.Background()))
	require.Eventually(t, func() bool { return g.State() == Unauthenticated }, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("GMVDASH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GMVDASH_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	key := "gmvdash:test:" + t.Name()

	s, err := OpenRedisStore(ctx, addr, key, testCipher(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Clear(ctx)
		_ = s.Close()
	})

	tok, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	jwtTok := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, s.Save(ctx, jwtTok))
	tok, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, jwtTok, tok)

	ttl, err := s.rdb.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Minute)

	assert.Error(t, s.Save(ctx, signedToken(t, time.Now().Add(-time.Minute))))

	// A guard restores its session from the shared store.
	g := NewGuard(s, &fakeAuth{me: meReturns(apiclient.User{ID: 3, Role: apiclient.RoleHost})})
	require.NoError(t, g.Init(ctx))
	assert.Equal(t, Authenticated, g.State())

	require.NoError(t, s.Clear(ctx))
	_, err = s.rdb.Get(ctx, key).Result()
	assert.ErrorIs(t, err, redis.Nil)
}
