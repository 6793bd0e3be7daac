// Package cache holds the overlay's lookup memo and hot key detector.
package cache

import (
	"fmt"
	"sync/atomic"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/dht"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	epoch  uint64
	lookup dht.Lookup
}

// RouteCache memoises key id -> (owner, hops) for the default entry node.
// Every entry is tagged with the topology epoch it was computed at; an
// entry from an older epoch is a miss and is dropped on access.
type RouteCache struct {
	lru *lru.Cache[domain.ID, entry]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	stores    atomic.Int64
}

// NewRouteCache creates a cache bounded to size entries.
func NewRouteCache(size int) (*RouteCache, error) {
	c := &RouteCache{}
	l, err := lru.NewWithEvict(size, func(domain.ID, entry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("route cache: %w", err)
	}
	c.lru = l
	return c, nil
}

// Get returns the lookup cached for key at epoch.
func (c *RouteCache) Get(epoch uint64, key domain.ID) (dht.Lookup, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return dht.Lookup{}, false
	}
	if e.epoch != epoch {
		c.lru.Remove(key)
		c.misses.Add(1)
		return dht.Lookup{}, false
	}
	c.hits.Add(1)
	return e.lookup, true
}

// Add stores the lookup computed for key at epoch.
func (c *RouteCache) Add(epoch uint64, key domain.ID, l dht.Lookup) {
	c.lru.Add(key, entry{epoch: epoch, lookup: l})
	c.stores.Add(1)
}

// Purge drops every entry. Membership changes call it so stale entries do
// not linger until they are touched.
func (c *RouteCache) Purge() {
	c.lru.Purge()
}

// CacheMetrics contains cache performance statistics.
type CacheMetrics struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
	Stores     int64   `json:"stores"`
	HitRate    float64 `json:"hit_rate"`
	EntryCount int     `json:"entries"`
}

// GetMetrics returns cache statistics.
func (c *RouteCache) GetMetrics() CacheMetrics {
	hits, misses := c.hits.Load(), c.misses.Load()
	hitRate := 0.0
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheMetrics{
		Hits:       hits,
		Misses:     misses,
		Evictions:  c.evictions.Load(),
		Stores:     c.stores.Load(),
		HitRate:    hitRate,
		EntryCount: c.lru.Len(),
	}
}
