package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GetJSON loads key from store and decodes it into dst. An entry that no
// longer decodes is reported as a miss so callers rebuild it.
func GetJSON(ctx context.Context, store Store, key string, dst any) error {
	if store == nil {
		return ErrCacheMiss
	}
	raw, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrCacheMiss, key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, store Store, key string, v any, ttl time.Duration) error {
	if store == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw, ttl)
}
