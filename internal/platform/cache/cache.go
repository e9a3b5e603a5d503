// Package cache provides the caching layer for resolution results: a
// bounded in-memory LRU store, an optional Redis tier, and startup warming.
package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is not found in cache
	ErrNotFound = errors.New("cache: key not found")

	// ErrInvalidValue is returned when cache value is invalid
	ErrInvalidValue = errors.New("cache: invalid value")
)

// Cache defines the minimal interface for cache operations
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, error)

	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache
	Delete(ctx context.Context, key string) error

	// Close closes the cache connection
	Close() error
}

// Store is the contract the resolution engine depends on. Beyond plain
// Get/Set it supports targeted eviction with a presence report, full
// invalidation, and size introspection.
type Store interface {
	Cache

	// Evict removes a key and reports whether it was present immediately
	// before the call. An entry that exists but has already expired counts
	// as absent.
	Evict(ctx context.Context, key string) bool

	// Clear discards every entry.
	Clear(ctx context.Context)

	// Stats reports the current and maximum number of entries.
	Stats() Stats
}

// Stats describes cache occupancy.
type Stats struct {
	Size    int `json:"size"`
	MaxSize int `json:"maxSize"`
}

// Shared wraps a cache whose lifecycle is owned elsewhere. Close on the
// wrapper is a no-op, so a shared tier survives callers that close and
// replace their own cache.
func Shared(c Cache) Cache {
	return sharedCache{c}
}

type sharedCache struct {
	Cache
}

func (sharedCache) Close() error { return nil }
