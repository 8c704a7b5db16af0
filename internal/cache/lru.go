package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LRUCache is a cost-bounded cache backed by ristretto. Cost is the size of
// the stored value in bytes.
type LRUCache struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration
}

// NewLRU creates a cache holding at most maxBytes of values and roughly
// maxEntries keys.
func NewLRU(maxBytes, maxEntries int64, defaultTTL time.Duration) (*LRUCache, error) {
	// NumCounters should be ~10x the number of entries
	numCounters := max(maxEntries*10, 1000)

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: c, defaultTTL: defaultTTL}, nil
}

// Get retrieves a value from the cache by key.
func (c *LRUCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	data, ok := val.([]byte)
	if !ok {
		c.cache.Del(key)
		return nil, false
	}
	return data, true
}

// Set stores a value. Values larger than the whole budget are dropped by
// ristretto.
func (c *LRUCache) Set(key string, value []byte, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	_ = c.cache.SetWithTTL(key, value, int64(len(value)), ttl)
	// make the value visible to the next Get
	c.cache.Wait()
}

// Delete removes a value from the cache.
func (c *LRUCache) Delete(key string) {
	c.cache.Del(key)
}

// Clear removes all values from the cache.
func (c *LRUCache) Clear() {
	c.cache.Clear()
}

// Stats returns cache statistics.
func (c *LRUCache) Stats() Stats {
	m := c.cache.Metrics
	return Stats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Evictions: m.KeysEvicted(),
		Size:      int64(m.CostAdded() - m.CostEvicted()),
	}
}

// Close closes the cache and releases resources.
func (c *LRUCache) Close() {
	c.cache.Close()
}
