// Package cache provides a small single-flight TTL memoizer used for
// expensive aggregates: the stats snapshot and the embedded-page
// corpus fetch.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Memoizer deduplicates concurrent identical computations and caches
// results for a TTL. Late joiners of an in-flight computation await the
// same result. When a recompute fails, the last known good value is
// served instead of the error.
type Memoizer[V any] struct {
	ttl   time.Duration
	group singleflight.Group
	fresh *expirable.LRU[string, V]
	stale *lru.Cache[string, V]
}

// New creates a Memoizer holding up to size keys with the given TTL.
func New[V any](size int, ttl time.Duration) (*Memoizer[V], error) {
	staleCache, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &Memoizer[V]{
		ttl:   ttl,
		fresh: expirable.NewLRU[string, V](size, nil, ttl),
		stale: staleCache,
	}, nil
}

// Do returns the cached value for key, computing it at most once per
// TTL window regardless of concurrency.
func (m *Memoizer[V]) Do(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := m.fresh.Get(key); ok {
		return v, nil
	}

	result, err, _ := m.group.Do(key, func() (interface{}, error) {
		// A concurrent caller may have repopulated while we waited.
		if v, ok := m.fresh.Get(key); ok {
			return v, nil
		}

		v, err := compute(ctx)
		if err != nil {
			if old, ok := m.stale.Get(key); ok {
				return old, nil
			}
			return nil, err
		}

		m.fresh.Add(key, v)
		m.stale.Add(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return result.(V), nil
}

// Invalidate drops both fresh and stale entries for key.
func (m *Memoizer[V]) Invalidate(key string) {
	m.fresh.Remove(key)
	m.stale.Remove(key)
}
