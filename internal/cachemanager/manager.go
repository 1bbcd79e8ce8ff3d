// Package cachemanager wraps in-process caches behind a small generic interface.
package cachemanager

import (
	"context"
	"time"
)

// NoExpiration keeps an entry until it is deleted or the cache is flushed.
const NoExpiration time.Duration = -1

// CacheManager is a typed key/value cache with per-entry lifetimes.
// Implementations must be safe for concurrent use.
type CacheManager[K ~string, V any] interface {
	// Get returns the entry for key while it is live.
	Get(ctx context.Context, key K) (V, bool)
	// GetWithRefresh is Get that also restarts the entry's lifetime at ttl.
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
