package infra

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/zdravscan/internal/cache"
	"github.com/magabrotheeeer/zdravscan/internal/config"
	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
	"github.com/magabrotheeeer/zdravscan/internal/storage/memory"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStore(ctx, config.Storage{Driver: "memory"}, sl.Discard())
	require.NoError(t, err)
	assert.IsType(t, &memory.Storage{}, s)
	assert.NoError(t, s.Ping(ctx))

	_, err = OpenStore(ctx, config.Storage{Driver: "sqlite"}, sl.Discard())
	assert.Error(t, err)
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	c, err := OpenCache(ctx, config.RedisConnection{}, sl.Discard())
	require.NoError(t, err)
	assert.Equal(t, cache.Noop{}, c)

	mr := miniredis.RunT(t)
	c, err = OpenCache(ctx, config.RedisConnection{AddressRedis: mr.Addr()}, sl.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Set(ctx, "k", 1, 0))
	assert.True(t, mr.Exists("k"))

	addr := mr.Addr()
	mr.Close()
	_, err = OpenCache(ctx, config.RedisConnection{AddressRedis: addr}, sl.Discard())
	assert.Error(t, err)
}
