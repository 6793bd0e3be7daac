package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moviedht"

// Metrics holds the Prometheus collectors of one overlay. Each overlay
// owns its registry so tests and the benchmark can build many.
type Metrics struct {
	registry *prometheus.Registry

	ops          *prometheus.CounterVec
	hops         *prometheus.HistogramVec
	members      prometheus.Gauge
	churn        *prometheus.CounterVec
	replicaReads prometheus.Counter
	records      prometheus.Gauge
}

// NewMetrics builds and registers the collectors, labelled with the
// topology protocol.
func NewMetrics(protocol string) *Metrics {
	constLabels := prometheus.Labels{"protocol": protocol}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "operations_total",
			Help:        "Overlay operations by name and result.",
			ConstLabels: constLabels,
		}, []string{"op", "result"}),
		hops: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "lookup_hops",
			Help:        "Hops taken to resolve a key.",
			ConstLabels: constLabels,
			Buckets:     prometheus.LinearBuckets(1, 1, 16),
		}, []string{"op"}),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "members",
			Help:        "Current overlay members.",
			ConstLabels: constLabels,
		}),
		churn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "membership_changes_total",
			Help:        "Joins and leaves.",
			ConstLabels: constLabels,
		}, []string{"event"}),
		replicaReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "replica_reads_total",
			Help:        "Reads served from a backup after a primary miss.",
			ConstLabels: constLabels,
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "records_written",
			Help:        "Records written by put, replicas included.",
			ConstLabels: constLabels,
		}),
	}
	m.registry.MustRegister(
		m.ops, m.hops, m.members, m.churn, m.replicaReads, m.records,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveOp counts one operation and, when hops > 0, its hop count.
func (m *Metrics) ObserveOp(op string, hops int, ok bool) {
	m.ops.WithLabelValues(op, strconv.FormatBool(ok)).Inc()
	if hops > 0 {
		m.hops.WithLabelValues(op).Observe(float64(hops))
	}
}

func (m *Metrics) ObserveJoin(members int) {
	m.churn.WithLabelValues("join").Inc()
	m.members.Set(float64(members))
}

func (m *Metrics) ObserveLeave(members int) {
	m.churn.WithLabelValues("leave").Inc()
	m.members.Set(float64(members))
}

func (m *Metrics) ObserveReplicaRead() {
	m.replicaReads.Inc()
}

func (m *Metrics) AddRecords(n int) {
	m.records.Add(float64(n))
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
