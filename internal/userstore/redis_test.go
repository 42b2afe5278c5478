package userstore

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set REDIS_TEST_ADDR (for example localhost:6379) to run against Redis.
func TestRedisCounter(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping redis integration test")
	}

	ctx := context.Background()
	c := NewRedisCounter(addr, os.Getenv("REDIS_TEST_PASSWORD"))
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	name := "test_" + uuid.NewString()
	t.Cleanup(func() { c.client.Del(context.Background(), redisKeyPrefix+name) })

	v, err := c.Value(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	for want := int64(1); want <= 3; want++ {
		v, err = c.Increment(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}

	v, err = c.Value(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestRedisCounter_Unreachable(t *testing.T) {
	c := NewRedisCounter("127.0.0.1:1", "")
	t.Cleanup(func() { _ = c.Close() })

	ctx := context.Background()
	assert.Error(t, c.Ping(ctx))
	_, err := c.Increment(ctx, CounterFilesProcessed)
	assert.Error(t, err)
}
