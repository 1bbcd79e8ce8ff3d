package cachemanager

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader fetches the value for key on a cache miss.
type Loader[K ~string, V any] func(ctx context.Context, key K) (V, error)

// ReadThroughOptions tune a ReadThroughCache.
type ReadThroughOptions struct {
	// TTL is passed to the underlying cache on every store.
	TTL time.Duration
	// Bypass calls the loader on every Get and never stores.
	Bypass bool
	// Sliding extends an entry's TTL each time it is read.
	Sliding bool
}

// ReadThroughCache loads values through a Loader on a miss and stores them.
// Concurrent misses for the same key share one load. Loader errors are
// returned as-is and nothing is cached.
type ReadThroughCache[K ~string, V any] struct {
	cache CacheManager[K, V]
	load  Loader[K, V]
	opts  ReadThroughOptions
	group singleflight.Group
}

func NewReadThroughCache[K ~string, V any](cache CacheManager[K, V], load Loader[K, V], opts ReadThroughOptions) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{cache: cache, load: load, opts: opts}
}

// Get returns the cached value for key or loads it.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if r.opts.Bypass {
		return r.load(ctx, key)
	}
	if value, ok := r.lookup(ctx, key); ok {
		return value, nil
	}

	ch := r.group.DoChan(string(key), func() (any, error) {
		value, err := r.load(ctx, key)
		if err != nil {
			return value, err
		}
		r.cache.Set(ctx, key, value, r.opts.TTL)
		return value, nil
	})

	select {
	case res := <-ch:
		value, _ := res.Val.(V)
		return value, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Forget drops key from the cache so the next Get loads it again.
func (r *ReadThroughCache[K, V]) Forget(ctx context.Context, key K) error {
	r.group.Forget(string(key))
	return r.cache.Delete(ctx, key)
}

func (r *ReadThroughCache[K, V]) lookup(ctx context.Context, key K) (V, bool) {
	if r.opts.Sliding {
		return r.cache.GetWithRefresh(ctx, key, r.opts.TTL)
	}
	return r.cache.Get(ctx, key)
}
