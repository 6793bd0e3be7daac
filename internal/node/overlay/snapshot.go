package overlay

import (
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/cache"
	"MovieDHT/internal/node/dht"
)

// Snapshot is the debug picture of the whole overlay.
type Snapshot struct {
	Protocol string              `json:"protocol"`
	Epoch    uint64              `json:"epoch"`
	Members  int                 `json:"members"`
	Records  int                 `json:"records"`
	Nodes    []dht.NodeView      `json:"nodes"`
	Routing  dht.RoutingMetrics  `json:"routing"`
	Cache    *cache.CacheMetrics `json:"route_cache,omitempty"`
	HotKeys  []cache.HotKey      `json:"hot_keys,omitempty"`
}

// View returns the routing state of the member that joined under name.
func (d *DHT) View(name string) (dht.NodeView, bool) {
	return d.ViewID(d.space.NewIdFromString(name))
}

func (d *DHT) ViewID(id domain.ID) (dht.NodeView, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.topo.View(id)
}

// Views returns the routing state of every member, sorted by id.
func (d *DHT) Views() []dht.NodeView {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.views()
}

func (d *DHT) views() []dht.NodeView {
	members := d.topo.Members()
	out := make([]dht.NodeView, 0, len(members))
	for _, n := range members {
		if v, ok := d.topo.View(n.ID); ok {
			out = append(out, v)
		}
	}
	return out
}

// RoutingMetrics merges the topology counters with the ones the facade
// keeps itself (replica reads and route cache traffic).
func (d *DHT) RoutingMetrics() dht.RoutingMetrics {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.routingMetrics()
}

func (d *DHT) routingMetrics() dht.RoutingMetrics {
	m := d.topo.Metrics()
	own := d.stats.Snapshot(m.Protocol, m.Members)
	m.ReplicaReads += own.ReplicaReads
	m.CacheHits += own.CacheHits
	m.CacheMisses += own.CacheMisses
	return m
}

// HotKeys returns the n keys with the highest decayed read rate.
func (d *DHT) HotKeys(n int) []cache.HotKey {
	return d.hot.Top(n)
}

// IsHot reports whether key is currently read above the hot threshold.
func (d *DHT) IsHot(key string) bool {
	norm, err := domain.NormalizeKey(key)
	if err != nil {
		return false
	}
	return d.hot.IsHot(norm)
}

// CacheMetrics reports route cache statistics, or false when the cache
// is disabled.
func (d *DHT) CacheMetrics() (cache.CacheMetrics, bool) {
	if d.routes == nil {
		return cache.CacheMetrics{}, false
	}
	return d.routes.GetMetrics(), true
}

// Snapshot captures members, per-node routing state and counters. With
// withNodes false the per-node views are omitted.
func (d *DHT) Snapshot(withNodes bool, hotKeys int) Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := Snapshot{
		Protocol: d.topo.Protocol(),
		Epoch:    d.topo.Epoch(),
		Members:  d.topo.Len(),
		Routing:  d.routingMetrics(),
		HotKeys:  d.hot.Top(hotKeys),
	}
	views := d.views()
	for _, v := range views {
		snap.Records += v.Records
	}
	if withNodes {
		snap.Nodes = views
	}
	if m, ok := d.CacheMetrics(); ok {
		snap.Cache = &m
	}
	return snap
}

// CleanHotKeys forgets keys not read within maxAge and returns how many.
func (d *DHT) CleanHotKeys(maxAge time.Duration) int {
	return d.hot.CleanStale(maxAge)
}
