// Package cache is a small in-process read cache for reference data that
// does not change during a race. Entries never expire; the whole cache is
// dropped with InvalidateAll when the game is reset.
package cache

import (
	"context"

	"github.com/jellydator/ttlcache/v3"
)

type Cache[K comparable, V any] struct {
	items *ttlcache.Cache[K, V]
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: ttlcache.New[K, V](ttlcache.WithDisableTouchOnHit[K, V]()),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	item := c.items.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.items.Set(key, value, ttlcache.NoTTL)
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Load errors are not cached.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

func (c *Cache[K, V]) Len() int { return c.items.Len() }

func (c *Cache[K, V]) InvalidateAll() { c.items.DeleteAll() }
