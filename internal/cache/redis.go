package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix keeps Kestrel keys apart when the Redis instance is shared.
const redisKeyPrefix = "kestrel:"

// incrScript increments a counter and starts its expiry window on first use.
var incrScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache is the shared Cache used when several Kestrel replicas must agree
// on rate limits and serve each other's async results.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	k, err := storageKey(namespace, key)
	if err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, redisKeyPrefix+k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

// Set stores value with a TTL.
func (c *RedisCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	k, err := storageKey(namespace, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+k, value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, namespace string, key string) error {
	k, err := storageKey(namespace, key)
	if err != nil {
		return err
	}
	return c.client.Del(ctx, redisKeyPrefix+k).Err()
}

// IncrementCounter runs INCR and PEXPIRE atomically so every replica sees the
// same window.
func (c *RedisCache) IncrementCounter(ctx context.Context, namespace string, key string, window time.Duration) (int64, error) {
	k, err := storageKey(namespace, counterPrefix+key)
	if err != nil {
		return 0, err
	}
	return incrScript.Run(ctx, c.client, []string{redisKeyPrefix + k}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
