package cache

import "sync"

// Cache is a generic thread-safe LRU cache with a soft limit.
// When the cache exceeds the limit, the least recently used quarter of
// the entries is evicted and handed to the eviction callback.
//
// Cache must not be copied after creation (has mutex).
type Cache[K comparable, V any] struct {
	mu        sync.Mutex
	entries   map[K]*cacheEntry[V]
	softLimit int
	tick      int64
	onEvict   func(K, V)

	hits, misses, evictions uint64
}

type cacheEntry[V any] struct {
	value V
	atime int64
}

// New creates a new cache with the given soft limit.
// A softLimit of 0 means unlimited. onEvict may be nil.
func New[K comparable, V any](softLimit int, onEvict func(K, V)) *Cache[K, V] {
	return &Cache[K, V]{
		entries:   make(map[K]*cacheEntry[V]),
		softLimit: softLimit,
		onEvict:   onEvict,
	}
}

// Get retrieves a value from the cache.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.tick++
	entry.atime = c.tick
	return entry.value, true
}

// GetOrCreate returns the cached value or stores the result of create.
// create runs under the lock; a create error is returned and nothing is
// stored, so the next call retries.
func (c *Cache[K, V]) GetOrCreate(key K, create func() (V, error)) (V, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if entry, ok := c.entries[key]; ok {
		c.hits++
		entry.atime = c.tick
		return entry.value, true, nil
	}
	c.misses++

	value, err := create()
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.entries[key] = &cacheEntry[V]{value: value, atime: c.tick}
	c.evictLocked(key)
	return value, false, nil
}

// Set stores a value, evicting old entries if over the limit.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if old, ok := c.entries[key]; ok && c.onEvict != nil {
		c.onEvict(key, old.value)
	}
	c.entries[key] = &cacheEntry[V]{value: value, atime: c.tick}
	c.evictLocked(key)
}

// Delete removes an entry without calling the eviction callback.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		return true
	}
	return false
}

// EvictFunc evicts every entry for which match returns true through the
// eviction callback and returns the number evicted.
func (c *Cache[K, V]) EvictFunc(match func(K, V) bool) int {
	c.mu.Lock()
	var (
		keys   []K
		values []V
	)
	for k, e := range c.entries {
		if match(k, e.value) {
			keys = append(keys, k)
			values = append(values, e.value)
			delete(c.entries, k)
		}
	}
	c.evictions += uint64(len(keys))
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict != nil {
		for i, k := range keys {
			onEvict(k, values[i])
		}
	}
	return len(keys)
}

// Purge evicts every entry through the eviction callback.
func (c *Cache[K, V]) Purge() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[K]*cacheEntry[V])
	c.tick = 0
	onEvict := c.onEvict
	c.mu.Unlock()

	if onEvict == nil {
		return
	}
	for k, e := range entries {
		onEvict(k, e.value)
	}
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Len:       len(c.entries),
		Capacity:  c.softLimit,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// evictLocked removes the oldest entries until the cache is at 3/4 of the
// soft limit. keep is never evicted. Caller must hold c.mu.
func (c *Cache[K, V]) evictLocked(keep K) {
	if c.softLimit <= 0 || len(c.entries) <= c.softLimit {
		return
	}
	target := max(c.softLimit*3/4, 1)

	for len(c.entries) > target {
		var (
			oldestKey K
			oldest    *cacheEntry[V]
		)
		for k, e := range c.entries {
			if k == keep {
				continue
			}
			if oldest == nil || e.atime < oldest.atime {
				oldestKey, oldest = k, e
			}
		}
		if oldest == nil {
			return
		}
		delete(c.entries, oldestKey)
		c.evictions++
		if c.onEvict != nil {
			c.onEvict(oldestKey, oldest.value)
		}
	}
}

// Stats contains cache statistics.
type Stats struct {
	Len       int
	Capacity  int
	Hits      uint64
	Misses    uint64
	HitRate   float64
	Evictions uint64
}
