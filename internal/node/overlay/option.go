package overlay

import (
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/telemetry"
)

type Option func(*DHT)

func WithLogger(l logger.Logger) Option {
	return func(d *DHT) {
		d.lgr = l
	}
}

// WithReplication sets how many backups put writes on the ring. Other
// topologies ignore it.
func WithReplication(r int) Option {
	return func(d *DHT) {
		d.replication = r
	}
}

// WithParallelProbes sets how many entry nodes GetParallel probes from.
func WithParallelProbes(k int) Option {
	return func(d *DHT) {
		if k > 0 {
			d.probes = k
		}
	}
}

// WithRouteCache memoises default-entry lookups in an LRU of size
// entries. Zero disables the cache.
func WithRouteCache(size int) Option {
	return func(d *DHT) {
		d.cacheSize = size
	}
}

// WithHotKeys configures the hot key detector.
func WithHotKeys(threshold, decayRate float64) Option {
	return func(d *DHT) {
		d.hotThreshold, d.hotDecay = threshold, decayRate
	}
}

// WithMetrics replaces the Prometheus collectors.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(d *DHT) {
		d.metrics = m
	}
}
