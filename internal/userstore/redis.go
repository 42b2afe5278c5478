package userstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisCounter implements Counter.
var _ Counter = (*RedisCounter)(nil)

const redisKeyPrefix = "screenshotbot:counter:"

// RedisCounter keeps counters in Redis with INCR.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter connects to addr.
func NewRedisCounter(addr, password string) *RedisCounter {
	return &RedisCounter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
	}
}

// Increment implements Counter.
func (c *RedisCounter) Increment(ctx context.Context, name string) (int64, error) {
	v, err := c.client.Incr(ctx, redisKeyPrefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return v, nil
}

// Value implements Counter.
func (c *RedisCounter) Value(ctx context.Context, name string) (int64, error) {
	v, err := c.client.Get(ctx, redisKeyPrefix+name).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	return v, nil
}

// Ping checks the Redis connection.
func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *RedisCounter) Close() error {
	return c.client.Close()
}
