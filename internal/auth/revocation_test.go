package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRevocationList(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	list := NewRedisRevocationList(client, "revoked:")
	ctx := context.Background()

	revoked, err := list.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "token-1", time.Hour))

	revoked, err = list.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRedisRevocationList_ExpiresWithToken(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	list := NewRedisRevocationList(client, "revoked:")
	ctx := context.Background()

	require.NoError(t, list.Revoke(ctx, "token-1", time.Second))
	srv.FastForward(2 * time.Second)

	revoked, err := list.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked, "revocation entries expire with the token")
}

func TestMemoryRevocationList(t *testing.T) {
	list := NewMemoryRevocationList()
	ctx := context.Background()

	revoked, err := list.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "token-1", time.Hour))

	revoked, err = list.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestMemoryRevocationList_Expiry(t *testing.T) {
	list := NewMemoryRevocationList()
	ctx := context.Background()

	require.NoError(t, list.Revoke(ctx, "token-1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	revoked, err := list.IsRevoked(ctx, "token-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationKey(t *testing.T) {
	withJTI := &Identity{Subject: "alice", TokenID: "jti-1"}
	assert.Equal(t, "jti-1", RevocationKeyForIdentity(withJTI))

	withoutJTI := &Identity{Subject: "alice", ExpiresAt: time.Unix(2000, 0)}
	key := RevocationKeyForIdentity(withoutJTI)
	assert.NotEmpty(t, key)
	assert.Equal(t, key, RevocationKeyForIdentity(withoutJTI), "derived keys are stable")
}
