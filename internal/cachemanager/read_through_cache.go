package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache fills a CacheManager from a loader function on miss.
type ReadThroughCache[K comparable, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	valid           func(V) bool
	shouldSkipCache bool
}

// ReadThroughOption configures a ReadThroughCache.
type ReadThroughOption[K comparable, V any, I any] func(*ReadThroughCache[K, V, I])

// WithValidator makes cached values that fail valid count as misses.
func WithValidator[K comparable, V any, I any](valid func(V) bool) ReadThroughOption[K, V, I] {
	return func(r *ReadThroughCache[K, V, I]) {
		r.valid = valid
	}
}

// WithSkipCache bypasses the cache entirely.
func WithSkipCache[K comparable, V any, I any](skip bool) ReadThroughOption[K, V, I] {
	return func(r *ReadThroughCache[K, V, I]) {
		r.shouldSkipCache = skip
	}
}

// NewReadThroughCache wraps cache with loader fn.
func NewReadThroughCache[K comparable, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	opts ...ReadThroughOption[K, V, I],
) *ReadThroughCache[K, V, I] {
	r := &ReadThroughCache[K, V, I]{
		cache: cache,
		fn:    fn,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the cached value for key, loading it from input on miss.
// Loader errors are returned and nothing is cached.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	return r.get(ctx, key, input, ttl, r.cache.Get)
}

// GetWithRefresh is Get, extending the ttl of a hit.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	return r.get(ctx, key, input, ttl, func(ctx context.Context, key K) (V, bool) {
		return r.cache.GetWithRefresh(ctx, key, ttl)
	})
}

func (r *ReadThroughCache[K, V, I]) get(
	ctx context.Context, key K, input I, ttl time.Duration,
	lookup func(ctx context.Context, key K) (V, bool),
) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := lookup(ctx, key); ok {
		if r.valid == nil || r.valid(value) {
			return value, nil
		}
		_ = r.cache.Delete(ctx, key)
	}

	value, err := r.fn(ctx, input)
	if err != nil {
		return value, err
	}

	r.cache.Set(ctx, key, value, ttl)
	return value, nil
}

// Forget drops keys from the cache.
func (r *ReadThroughCache[K, V, I]) Forget(ctx context.Context, keys ...K) error {
	return r.cache.Delete(ctx, keys...)
}
