package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryItem represents an item in the memory cache
type memoryItem struct {
	key        string
	value      interface{}
	expiration time.Time
}

// MemoryCache implements an in-memory LRU cache with per-entry TTL.
// An expired entry is treated as absent even before the sweeper removes it,
// and the entry count never exceeds maxSize.
type MemoryCache struct {
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryCache creates a new in-memory cache holding at most maxSize entries
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000 // default max size
	}

	c := &MemoryCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		stopCh:  make(chan struct{}),
	}

	// Sweep expired entries in the background
	go c.sweep()

	return c
}

// Get retrieves a value from cache. An expired entry behaves as a miss and
// is removed on the way out.
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		return nil, ErrNotFound
	}

	item := element.Value.(*memoryItem)
	if c.expired(item) {
		c.remove(key)
		return nil, ErrNotFound
	}

	// Most recently used
	c.lru.MoveToFront(element)

	return item.value, nil
}

// Set stores a value with the given TTL. A non-positive TTL means the entry
// never expires by age.
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiration time.Time
	if ttl > 0 {
		expiration = time.Now().Add(ttl)
	}

	if element, exists := c.items[key]; exists {
		item := element.Value.(*memoryItem)
		item.value = value
		item.expiration = expiration
		c.lru.MoveToFront(element)
		return nil
	}

	element := c.lru.PushFront(&memoryItem{
		key:        key,
		value:      value,
		expiration: expiration,
	})
	c.items[key] = element

	if c.lru.Len() > c.maxSize {
		c.evictOldest()
	}

	return nil
}

// Delete removes a key from cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(key)
	return nil
}

// Evict removes a key and reports whether a live entry was present
func (c *MemoryCache) Evict(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.items[key]
	if !exists {
		return false
	}
	live := !c.expired(element.Value.(*memoryItem))
	c.remove(key)
	return live
}

// Clear discards every entry
func (c *MemoryCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

// Stats reports current occupancy and the configured capacity
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
	}
}

// Close stops the background sweeper
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		close(c.stopCh)
	})
	return nil
}

// expired reports whether an item's TTL has elapsed
func (c *MemoryCache) expired(item *memoryItem) bool {
	return !item.expiration.IsZero() && time.Now().After(item.expiration)
}

// remove removes an item (caller must hold lock)
func (c *MemoryCache) remove(key string) {
	if element, exists := c.items[key]; exists {
		c.lru.Remove(element)
		delete(c.items, key)
	}
}

// evictOldest removes the least recently used item (caller must hold lock)
func (c *MemoryCache) evictOldest() {
	element := c.lru.Back()
	if element != nil {
		item := element.Value.(*memoryItem)
		c.remove(item.key)
	}
}

// sweep periodically removes expired items so stale entries do not pin
// capacity between reads
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, element := range c.items {
		if c.expired(element.Value.(*memoryItem)) {
			c.remove(key)
		}
	}
}
