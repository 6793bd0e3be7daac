package dht

import (
	"sync/atomic"
	"time"
)

// RoutingMetrics captures runtime routing statistics exposed on the
// debug endpoint and the shell.
type RoutingMetrics struct {
	Protocol         string  `json:"protocol"`
	Members          int     `json:"members"`
	Joins            uint64  `json:"joins"`
	Leaves           uint64  `json:"leaves"`
	Lookups          uint64  `json:"lookups"`
	AvgHops          float64 `json:"avg_hops"`
	MaxHops          uint64  `json:"max_hops"`
	FallbackScans    uint64  `json:"fallback_scans"`
	FingerPatches    uint64  `json:"finger_patches"`
	KeysTransferred  uint64  `json:"keys_transferred"`
	ReplicaReads     uint64  `json:"replica_reads"`
	CacheHits        uint64  `json:"cache_hits"`
	CacheMisses      uint64  `json:"cache_misses"`
	AvgLookupLatency float64 `json:"avg_lookup_latency_ms"`
}

// Stats accumulates routing counters. All methods are safe for
// concurrent use.
type Stats struct {
	joins           atomic.Uint64
	leaves          atomic.Uint64
	lookups         atomic.Uint64
	hops            atomic.Uint64
	maxHops         atomic.Uint64
	fallbackScans   atomic.Uint64
	fingerPatches   atomic.Uint64
	keysTransferred atomic.Uint64
	replicaReads    atomic.Uint64
	cacheHits       atomic.Uint64
	cacheMisses     atomic.Uint64
	lookupLatency   atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) ObserveJoin() { s.joins.Add(1) }
func (s *Stats) ObserveLeave() { s.leaves.Add(1) }

// ObserveLookup records one completed route.
func (s *Stats) ObserveLookup(hops int, d time.Duration) {
	s.lookups.Add(1)
	s.hops.Add(uint64(hops))
	s.lookupLatency.Add(d.Nanoseconds())
	for {
		cur := s.maxHops.Load()
		if uint64(hops) <= cur || s.maxHops.CompareAndSwap(cur, uint64(hops)) {
			return
		}
	}
}

func (s *Stats) ObserveFallback() { s.fallbackScans.Add(1) }
func (s *Stats) ObserveFingerPatches(n int) { s.fingerPatches.Add(uint64(n)) }
func (s *Stats) ObserveTransfer(keys int) { s.keysTransferred.Add(uint64(keys)) }
func (s *Stats) ObserveReplicaRead() { s.replicaReads.Add(1) }
func (s *Stats) ObserveCache(hit bool) {
	if hit {
		s.cacheHits.Add(1)
		return
	}
	s.cacheMisses.Add(1)
}

// Snapshot returns a consistent-enough copy of the counters.
func (s *Stats) Snapshot(protocol string, members int) RoutingMetrics {
	lookups := s.lookups.Load()
	return RoutingMetrics{
		Protocol:         protocol,
		Members:          members,
		Joins:            s.joins.Load(),
		Leaves:           s.leaves.Load(),
		Lookups:          lookups,
		AvgHops:          avg(float64(s.hops.Load()), lookups),
		MaxHops:          s.maxHops.Load(),
		FallbackScans:    s.fallbackScans.Load(),
		FingerPatches:    s.fingerPatches.Load(),
		KeysTransferred:  s.keysTransferred.Load(),
		ReplicaReads:     s.replicaReads.Load(),
		CacheHits:        s.cacheHits.Load(),
		CacheMisses:      s.cacheMisses.Load(),
		AvgLookupLatency: avg(float64(s.lookupLatency.Load())/1e6, lookups),
	}
}

func avg(total float64, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
