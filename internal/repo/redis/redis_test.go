package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/hamed0406/safezone/internal/domain"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Store) {
	mr := miniredis.RunT(t)
	return mr, NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRedisStore_SetGetRemove(t *testing.T) {
	mr, s := setupTestRedis(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte(`{"v":1}`)))
	require.True(t, mr.Exists("k"))
	require.Equal(t, 0, int(mr.TTL("k")))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, s.Remove(ctx, "k"))
	require.False(t, mr.Exists("k"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr, s := setupTestRedis(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrNotFound)
}
