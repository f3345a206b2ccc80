package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// GetJSON decodes a cached value into v. It reports false when the key is
// absent or expired.
func GetJSON(ctx context.Context, c domain.Cache, namespace, key string, v any) (bool, error) {
	data, err := c.Get(ctx, namespace, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c domain.Cache, namespace, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, namespace, key, data, ttl)
}
