package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrNamespaceRequired is returned for operations without a namespace.
var ErrNamespaceRequired = errors.New("namespace is required")

const (
	counterPrefix   = "counter:"
	defaultLocalTTL = 5 * time.Minute
)

func storageKey(namespace, key string) (string, error) {
	if namespace == "" {
		return "", ErrNamespaceRequired
	}
	return namespace + ":" + key, nil
}

// New returns the cache selected by cfg.Type. "memory" is process local;
// "redis" is shared, fronted by a local tier when EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "", "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache reads through a local LRU to Redis. Submission results never
// change once written, so a short local copy is always safe to serve.
// Counters bypass the local tier; every replica must count against Redis.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   domain.Cache
	localTTL time.Duration
}

// NewTwoPhaseCache connects to Redis and wraps it with a local LRU.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	return newTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
}

func newTwoPhase(local *LRUCache, remote domain.Cache, localTTL time.Duration) *TwoPhaseCache {
	if localTTL <= 0 {
		localTTL = defaultLocalTTL
	}
	return &TwoPhaseCache{local: local, remote: remote, localTTL: localTTL}
}

// Get serves local hits and copies remote hits locally.
func (c *TwoPhaseCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	if val, err := c.local.Get(ctx, namespace, key); err != nil || val != nil {
		return val, err
	}

	val, err := c.remote.Get(ctx, namespace, key)
	if err != nil || val == nil {
		return val, err
	}
	_ = c.local.Set(ctx, namespace, key, val, c.localTTL)
	return val, nil
}

// Set writes remote first so a failed write is never visible locally.
func (c *TwoPhaseCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, namespace, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, namespace, key, value, min(ttl, c.localTTL))
}

// Delete removes key from both tiers.
func (c *TwoPhaseCache) Delete(ctx context.Context, namespace string, key string) error {
	if err := c.local.Delete(ctx, namespace, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, namespace, key)
}

// IncrementCounter always counts remotely.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, namespace string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, namespace, key, window)
}

// Ping reports the remote tier; the local tier cannot fail.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("remote cache: %w", err)
	}
	return nil
}

// Close closes both tiers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns local tier statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
