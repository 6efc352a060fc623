package reconcile

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Cache maps object type and natural key to a resolved target record for the
// duration of one run. It is safe for concurrent use. A nil *Cache is valid
// and caches nothing.
type Cache struct {
	mu      sync.RWMutex
	records map[string]*Record
	sf      singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{records: make(map[string]*Record)}
}

func cacheKey(kind, key string) string {
	return kind + "|" + key
}

// Get returns the cached record for key.
func (c *Cache) Get(kind, key string) (*Record, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	rec, ok := c.records[cacheKey(kind, key)]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return rec, ok
}

// Put stores a resolved record. Nil records are ignored: absence is never
// cached because another lane may create the record.
func (c *Cache) Put(kind, key string, rec *Record) {
	if c == nil || rec == nil {
		return
	}
	c.mu.Lock()
	c.records[cacheKey(kind, key)] = rec
	c.mu.Unlock()
}

// Forget drops a cached record.
func (c *Cache) Forget(kind, key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.records, cacheKey(kind, key))
	c.mu.Unlock()
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Stats returns hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// Resolve returns the record for key, looking it up through the adapter on a
// cache miss. Concurrent lookups for the same key share one request.
func (c *Cache) Resolve(ctx context.Context, a Adapter, key string) (*Record, error) {
	if c == nil {
		return a.Find(ctx, key)
	}

	// Fast path
	if rec, ok := c.Get(a.Name(), key); ok {
		return rec, nil
	}

	// Slow path: one lookup per key in flight
	v, err, _ := c.sf.Do(cacheKey(a.Name(), key), func() (interface{}, error) {
		c.mu.RLock()
		rec, ok := c.records[cacheKey(a.Name(), key)]
		c.mu.RUnlock()
		if ok {
			return rec, nil
		}

		rec, err := a.Find(ctx, key)
		if err != nil {
			return nil, err
		}
		c.Put(a.Name(), key, rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*Record)
	return rec, nil
}
