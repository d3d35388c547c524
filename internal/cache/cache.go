// Package cache provides a TTL key-value store for small serialized values,
// backed by Redis when one is configured and by process memory otherwise.
package cache

import (
	"context"
	"time"
)

// Cache stores string values under string keys with per-entry expiry.
type Cache interface {
	// Get returns the value for key and whether it was present and fresh.
	Get(ctx context.Context, key string) (string, bool)
	// Set stores value under key for ttl. A zero ttl stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}
