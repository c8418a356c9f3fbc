// ABOUTME: Tests for the file and redis token stores
// ABOUTME: Redis tests run only when DISCORD_BRIDGE_TEST_REDIS is set
package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitfocus/companion-module-discord-api/internal/config"
	"github.com/bitfocus/companion-module-discord-api/pkg/rpc"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func sampleToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func assertSameToken(t *testing.T, want, got *oauth2.Token) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.Equal(t, want.TokenType, got.TokenType)
	assert.True(t, want.Expiry.Equal(got.Expiry), "expiry %v != %v", want.Expiry, got.Expiry)
}

func TestFileMissingIsEmpty(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "none.yaml"))
	tok, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "token.yaml")
	f := NewFile(path)

	require.NoError(t, f.Save(ctx, sampleToken()))
	got, err := f.Load(ctx)
	require.NoError(t, err)
	assertSameToken(t, sampleToken(), got)

	// Overwrite leaves no temp files behind.
	require.NoError(t, f.Save(ctx, &oauth2.Token{RefreshToken: "second"}))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	got, err = NewFile(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got.RefreshToken)
	assert.Empty(t, got.AccessToken)
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.yaml")
	require.NoError(t, os.WriteFile(path, []byte("refresh_token: [unterminated"), 0o600))

	_, err := NewFile(path).Load(context.Background())
	assert.Error(t, err)
}

func TestFileRejectsNil(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "token.yaml"))
	assert.Error(t, f.Save(context.Background(), nil))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.TokenStoreConfig{Kind: config.StoreMemory})
	require.NoError(t, err)
	assert.IsType(t, &rpc.MemoryTokenStore{}, s)

	s, err = Open(ctx, config.TokenStoreConfig{Kind: config.StoreFile, Path: filepath.Join(t.TempDir(), "t.yaml")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	_, err = Open(ctx, config.TokenStoreConfig{Kind: "tape"})
	assert.Error(t, err)
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("DISCORD_BRIDGE_TEST_REDIS")
	if addr == "" {
		t.Skip("DISCORD_BRIDGE_TEST_REDIS not set")
	}
	ctx := context.Background()

	store, err := Open(ctx, config.TokenStoreConfig{
		Kind:      config.StoreRedis,
		RedisAddr: addr,
		RedisKey:  "discord-bridge-test:" + uuid.NewString(),
	})
	require.NoError(t, err)
	r := store.(*Redis)
	t.Cleanup(func() {
		r.rdb.Del(context.Background(), r.key)
		r.Close()
	})

	tok, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, r.Save(ctx, sampleToken()))
	got, err := r.Load(ctx)
	require.NoError(t, err)
	assertSameToken(t, sampleToken(), got)

	require.NoError(t, r.Save(ctx, &oauth2.Token{RefreshToken: "only"}))
	got, err = r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", got.RefreshToken)
	assert.True(t, got.Expiry.IsZero())
}
