// Package overlay is the DHT facade. It owns one topology, hashes names
// and keys onto it, fans records out to replicas on the ring and
// serialises mutations against concurrent reads.
package overlay

import (
	"fmt"
	"sync"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/cache"
	"MovieDHT/internal/node/chord"
	"MovieDHT/internal/node/config"
	"MovieDHT/internal/node/dht"
	"MovieDHT/internal/node/pastry"
	"MovieDHT/internal/node/replica"
	"MovieDHT/internal/node/simple"
	"MovieDHT/internal/node/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "MovieDHT/overlay"

// DHT is the facade over one topology. Join, Leave, Put, Update and
// Delete take the write lock; Get and GetParallel share the read lock.
type DHT struct {
	mu sync.RWMutex

	lgr       logger.Logger
	topo      dht.Topology
	space     domain.Space
	ring      replica.Ring // nil unless the topology supports placement
	place     replica.Placement
	tracer    trace.Tracer
	metrics   *telemetry.Metrics
	stats     *dht.Stats
	routes    *cache.RouteCache
	hot       *cache.HotKeyDetector
	probes    int
	cacheSize int

	replication  int
	hotThreshold float64
	hotDecay     float64
}

// New wraps topo in a facade.
func New(topo dht.Topology, opts ...Option) (*DHT, error) {
	d := &DHT{
		lgr:          &logger.NopLogger{},
		topo:         topo,
		space:        topo.Space(),
		tracer:       otel.Tracer(tracerName),
		stats:        dht.NewStats(),
		probes:       4,
		hotThreshold: 50,
		hotDecay:     0.65,
	}
	for _, opt := range opts {
		opt(d)
	}

	if r, ok := topo.(replica.Ring); ok {
		d.ring = r
	}
	d.place = replica.New(d.replication)
	if d.metrics == nil {
		d.metrics = telemetry.NewMetrics(topo.Protocol())
	}
	if d.cacheSize > 0 {
		rc, err := cache.NewRouteCache(d.cacheSize)
		if err != nil {
			return nil, err
		}
		d.routes = rc
	}
	d.hot = cache.NewHotKeyDetector(d.hotThreshold, d.hotDecay)

	d.lgr.Info("overlay: initialized",
		logger.F("protocol", topo.Protocol()),
		logger.F("id_bits", d.space.Bits),
		logger.F("replication", d.place.Factor()),
		logger.F("probes", d.probes),
		logger.F("route_cache", d.cacheSize))
	return d, nil
}

// NewFromConfig builds the space, the topology named by cfg.Protocol and
// the facade around it.
func NewFromConfig(cfg config.DHTConfig, lgr logger.Logger) (*DHT, error) {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	space, err := domain.NewSpace(cfg.IDBits, domain.HashFunc(cfg.Hash))
	if err != nil {
		return nil, err
	}

	var topo dht.Topology
	switch cfg.Protocol {
	case config.ProtocolRing:
		m := chord.Incremental
		if cfg.FingerMaintenance == config.FingersFull {
			m = chord.FullRebuild
		}
		topo = chord.New(space,
			chord.WithLogger(lgr.Named("ring")),
			chord.WithMaintenance(m),
			chord.WithMigrateOnLeave(cfg.MigrateOnLeave))
	case config.ProtocolMesh:
		topo = pastry.New(space,
			pastry.WithLogger(lgr.Named("mesh")),
			pastry.WithLeafSize(cfg.LeafSize),
			pastry.WithMigrateOnLeave(cfg.MigrateOnLeave))
	case config.ProtocolModulo:
		topo = simple.New(space, simple.WithLogger(lgr.Named("modulo")))
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTopology, cfg.Protocol)
	}

	return New(topo,
		WithLogger(lgr.Named("overlay")),
		WithReplication(cfg.ReplicationFactor),
		WithParallelProbes(cfg.ParallelProbes),
		WithRouteCache(cfg.RouteCacheSize),
		WithHotKeys(cfg.HotKeys.Threshold, cfg.HotKeys.DecayRate))
}

// Protocol names the underlying topology.
func (d *DHT) Protocol() string {
	return d.topo.Protocol()
}

// Space returns the identifier space.
func (d *DHT) Space() domain.Space {
	return d.space
}

// Metrics exposes the Prometheus collectors.
func (d *DHT) Metrics() *telemetry.Metrics {
	return d.metrics
}
