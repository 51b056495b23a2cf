package refreshtokens

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisRepo(t *testing.T) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client), mr
}

func TestRedisRepository_RevokeAndCheck(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t)

	revoked, err := repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, repo.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)))
	require.NoError(t, repo.Revoke(ctx, "jti-1", time.Now().Add(time.Hour)), "revoking twice is fine")

	revoked, err = repo.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := mr.TTL(redisKeyPrefix + "jti-1")
	assert.InDelta(t, time.Hour.Seconds(), ttl.Seconds(), 5)
}

func TestRedisRepository_EntryExpiresWithToken(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t)

	require.NoError(t, repo.Revoke(ctx, "jti-2", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	revoked, err := repo.IsRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRepository_AlreadyExpiredIsSkipped(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t)

	require.NoError(t, repo.Revoke(ctx, "jti-3", time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists(redisKeyPrefix+"jti-3"))
}

func TestRedisRepository_ServerDown(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRedisRepo(t)
	mr.Close()

	_, err := repo.IsRevoked(ctx, "jti-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis error")

	err = repo.Revoke(ctx, "jti-1", time.Now().Add(time.Hour))
	require.Error(t, err)
}
