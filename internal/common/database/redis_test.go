package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchase-sync/internal/common/config"
)

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewRedis(config.RedisConfig{Address: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Ping(context.Background()))
}

func TestRedisClient_PingFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	c := NewRedis(config.RedisConfig{Address: addr})
	t.Cleanup(func() { _ = c.Close() })

	err = c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestRedisClient_CloseNil(t *testing.T) {
	c := &RedisClient{}
	assert.NoError(t, c.Close())
}
