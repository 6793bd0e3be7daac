// Package simple provides a modulo hash-based topology for baseline
// comparison experiments.
//
// Unlike the ring and the mesh, which use consistent hashing, this
// topology assigns a key to member hash(key) % N, where members are sorted
// by name. Every membership change remaps almost every key; the moved key
// count is recorded so benchmarks can contrast it with the ring.
package simple

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/dht"
	"MovieDHT/internal/node/storage"
)

const Protocol = "modulo"

type member struct {
	node  domain.Node
	store *storage.Storage
}

// Modulo implements dht.Topology with direct hash(key) % N placement.
// Any member resolves any key in one hop.
type Modulo struct {
	lgr   logger.Logger
	space domain.Space

	clusterNodes []*member // sorted by name
	byID         map[domain.ID]*member
	epoch        uint64
	stats        *dht.Stats
}

var _ dht.Topology = (*Modulo)(nil)

// New creates an empty modulo topology.
func New(space domain.Space, opts ...Option) *Modulo {
	m := &Modulo{
		lgr:   &logger.NopLogger{},
		space: space,
		byID:  make(map[domain.ID]*member),
		stats: dht.NewStats(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Modulo) Protocol() string { return Protocol }
func (m *Modulo) Space() domain.Space { return m.space }
func (m *Modulo) Len() int { return len(m.clusterNodes) }
func (m *Modulo) Epoch() uint64 { return m.epoch }

func (m *Modulo) Metrics() dht.RoutingMetrics {
	return m.stats.Snapshot(Protocol, len(m.clusterNodes))
}

// Members returns the members sorted by id.
func (m *Modulo) Members() []domain.Node {
	out := make([]domain.Node, 0, len(m.clusterNodes))
	for _, mb := range m.clusterNodes {
		out = append(out, mb.node)
	}
	slices.SortFunc(out, func(a, b domain.Node) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func (m *Modulo) Store(id domain.ID) (*storage.Storage, bool) {
	mb, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return mb.store, true
}

// getResponsibleNodeIndex returns hash(key) % N.
func (m *Modulo) getResponsibleNodeIndex(key domain.ID) int {
	return int(uint64(key) % uint64(len(m.clusterNodes)))
}

// Join adds n and remaps every stored key to its new owner.
func (m *Modulo) Join(n domain.Node) error {
	if err := m.space.IsValidID(n.ID); err != nil {
		return err
	}
	if _, ok := m.byID[n.ID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentifier, n)
	}
	mb := &member{node: n, store: storage.NewMemoryStorage(m.lgr.Named("storage").WithNode(n))}
	i, _ := slices.BinarySearchFunc(m.clusterNodes, n.Name, func(e *member, name string) int {
		return strings.Compare(e.node.Name, name)
	})
	m.clusterNodes = slices.Insert(m.clusterNodes, i, mb)
	m.byID[n.ID] = mb

	m.remap()
	m.epoch++
	m.stats.ObserveJoin()
	m.lgr.Info("simple: node joined",
		logger.FNode("node", n),
		logger.F("total_nodes", len(m.clusterNodes)))
	return nil
}

// Leave removes the member with id. Its entries are lost; every other key
// is remapped to the new modulus.
func (m *Modulo) Leave(id domain.ID) (domain.Node, error) {
	mb, ok := m.byID[id]
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: member %s", domain.ErrNotFound, id.ToHexString())
	}
	mb.store.Clear()
	delete(m.byID, id)
	m.clusterNodes = slices.DeleteFunc(m.clusterNodes, func(e *member) bool { return e == mb })
	if len(m.clusterNodes) > 0 {
		m.remap()
	}
	m.epoch++
	m.stats.ObserveLeave()
	m.lgr.Info("simple: node left",
		logger.FNode("node", mb.node),
		logger.F("total_nodes", len(m.clusterNodes)))
	return mb.node, nil
}

// remap moves every key that no longer belongs to its holder.
func (m *Modulo) remap() {
	moved := 0
	for idx, mb := range m.clusterNodes {
		out := mb.store.Take(func(key string) bool {
			return m.getResponsibleNodeIndex(m.space.NewIdFromString(key)) != idx
		})
		for key, recs := range out {
			owner := m.clusterNodes[m.getResponsibleNodeIndex(m.space.NewIdFromString(key))]
			owner.store.Merge(map[string][]domain.Record{key: recs})
		}
		moved += len(out)
	}
	if moved > 0 {
		m.stats.ObserveTransfer(moved)
		m.lgr.Debug("simple: keys remapped", logger.F("keys", moved))
	}
}

// Lookup returns the responsible member in one hop.
func (m *Modulo) Lookup(key domain.ID) (dht.Lookup, error) {
	if len(m.clusterNodes) == 0 {
		return dht.Lookup{}, domain.ErrEmptyOverlay
	}
	start := time.Now()
	owner := m.clusterNodes[m.getResponsibleNodeIndex(key)]
	m.stats.ObserveLookup(1, time.Since(start))
	return dht.Lookup{Owner: owner.node, Hops: 1}, nil
}

// LookupFrom ignores the entry beyond checking that it exists: every
// member knows the full membership.
func (m *Modulo) LookupFrom(entry, key domain.ID) (dht.Lookup, error) {
	if len(m.clusterNodes) == 0 {
		return dht.Lookup{}, domain.ErrEmptyOverlay
	}
	if _, ok := m.byID[entry]; !ok {
		return dht.Lookup{}, fmt.Errorf("%w: entry %s", domain.ErrNotFound, entry.ToHexString())
	}
	return m.Lookup(key)
}

func (m *Modulo) View(id domain.ID) (dht.NodeView, bool) {
	mb, ok := m.byID[id]
	if !ok {
		return dht.NodeView{}, false
	}
	return dht.NodeView{
		Node:    mb.node,
		Keys:    mb.store.Len(),
		Records: mb.store.RecordCount(),
	}, true
}
