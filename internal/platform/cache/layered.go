package cache

import (
	"context"
	"time"
)

// LayeredCache is a two-tier cache: a bounded in-memory Store in front of a
// shared Redis tier. Stats and Clear are scoped to the local tier; the
// engine's occupancy contract is about the memory it owns, not the shared
// backend.
type LayeredCache struct {
	l1 Store // Fast local LRU cache
	l2 Cache // Shared Redis cache
}

// NewLayeredCache creates a new layered cache
func NewLayeredCache(l1 Store, l2 Cache) *LayeredCache {
	return &LayeredCache{
		l1: l1,
		l2: l2,
	}
}

// Get retrieves a value (L1 → L2 → miss), backfilling L1 on an L2 hit
func (lc *LayeredCache) Get(ctx context.Context, key string) (interface{}, error) {
	if val, err := lc.l1.Get(ctx, key); err == nil {
		return val, nil
	}

	if lc.l2 != nil {
		val, err := lc.l2.Get(ctx, key)
		if err == nil {
			// Backfill with a short TTL so the local copy re-validates soon
			_ = lc.l1.Set(ctx, key, val, 1*time.Minute)
			return val, nil
		}
	}

	return nil, ErrNotFound
}

// Set writes through to both tiers
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	l1Err := lc.l1.Set(ctx, key, value, ttl)

	var l2Err error
	if lc.l2 != nil {
		l2Err = lc.l2.Set(ctx, key, value, ttl)
	}

	// Only a double failure is worth reporting
	if l1Err != nil && l2Err != nil {
		return l2Err
	}

	return nil
}

// Delete removes a key from both tiers
func (lc *LayeredCache) Delete(ctx context.Context, key string) error {
	l1Err := lc.l1.Delete(ctx, key)

	var l2Err error
	if lc.l2 != nil {
		l2Err = lc.l2.Delete(ctx, key)
	}

	if l1Err != nil {
		return l1Err
	}
	return l2Err
}

// Evict removes a key from both tiers; presence is judged by the local tier
func (lc *LayeredCache) Evict(ctx context.Context, key string) bool {
	present := lc.l1.Evict(ctx, key)
	if lc.l2 != nil {
		_ = lc.l2.Delete(ctx, key)
	}
	return present
}

// Clear discards every local entry. The shared tier is left to its TTLs:
// other instances may still be serving from it.
func (lc *LayeredCache) Clear(ctx context.Context) {
	lc.l1.Clear(ctx)
}

// Stats reports local-tier occupancy
func (lc *LayeredCache) Stats() Stats {
	return lc.l1.Stats()
}

// Close closes both tiers
func (lc *LayeredCache) Close() error {
	l1Err := lc.l1.Close()

	var l2Err error
	if lc.l2 != nil {
		l2Err = lc.l2.Close()
	}

	if l1Err != nil {
		return l1Err
	}
	return l2Err
}
