package domain

import (
	"context"
	"time"
)

// Cache defines the interface for the shared key/value store used by the
// rate limiter. Keys are partitioned by namespace.
type Cache interface {
	// Get returns nil, nil if the key is not found.
	Get(ctx context.Context, namespace string, key string) ([]byte, error)

	Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, namespace string, key string) error

	// IncrementCounter atomically increments a counter that resets after window
	// and returns the new value.
	IncrementCounter(ctx context.Context, namespace string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" mapstructure:"type"`

	LocalMaxSize int           `json:"localMaxSize" mapstructure:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" mapstructure:"local_ttl"`

	RedisAddr     string `json:"redisAddr" mapstructure:"redis_addr"`
	RedisPassword string `json:"-" mapstructure:"redis_password"`
	RedisDB       int    `json:"redisDb" mapstructure:"redis_db"`

	// EnableTwoPhase checks the local LRU before Redis.
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enable_two_phase"`
}
