// Package pastry implements the mesh topology: every member keeps a leaf
// set of its numerically closest peers and a prefix routing table indexed
// by shared hex-prefix length and next digit.
package pastry

import (
	"fmt"
	"math/bits"
	"slices"
	"sort"
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/arena"
	"MovieDHT/internal/node/dht"
	"MovieDHT/internal/node/storage"
)

const Protocol = "mesh"

// joinWalkSlack is added to log2(size+1) to bound the join walk.
const joinWalkSlack = 5

// Mesh is the Pastry-style topology.
type Mesh struct {
	lgr      logger.Logger
	space    domain.Space
	leafSize int
	migrate  bool

	nodes *arena.Arena[*meshNode]
	order []arena.Handle // sorted by id
	epoch uint64
	stats *dht.Stats
}

var _ dht.Topology = (*Mesh)(nil)

func New(space domain.Space, opts ...Option) *Mesh {
	m := &Mesh{
		lgr:      &logger.NopLogger{},
		space:    space,
		leafSize: DefaultLeafSize,
		nodes:    arena.New[*meshNode](),
		stats:    dht.NewStats(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mesh) Protocol() string {
	return Protocol
}

func (m *Mesh) Space() domain.Space {
	return m.space
}

func (m *Mesh) Len() int {
	return len(m.order)
}

func (m *Mesh) Epoch() uint64 {
	return m.epoch
}

func (m *Mesh) Metrics() dht.RoutingMetrics {
	return m.stats.Snapshot(Protocol, len(m.order))
}

func (m *Mesh) Members() []domain.Node {
	out := make([]domain.Node, 0, len(m.order))
	for _, h := range m.order {
		out = append(out, m.nodes.MustGet(h).node)
	}
	return out
}

func (m *Mesh) Store(id domain.ID) (*storage.Storage, bool) {
	h, ok := m.handleOf(id)
	if !ok {
		return nil, false
	}
	return m.nodes.MustGet(h).store, true
}

func (m *Mesh) search(id domain.ID) int {
	return sort.Search(len(m.order), func(i int) bool {
		return m.nodes.MustGet(m.order[i]).node.ID >= id
	})
}

func (m *Mesh) handleOf(id domain.ID) (arena.Handle, bool) {
	i := m.search(id)
	if i < len(m.order) && m.nodes.MustGet(m.order[i]).node.ID == id {
		return m.order[i], true
	}
	return arena.Nil, false
}

// maxHops bounds a lookup: the id width in hex digits, widened to
// log2(N)+2 for tiny spaces.
func (m *Mesh) maxHops() int {
	return max(m.space.Digits, bits.Len(uint(len(m.order)))+1)
}

// -------------------------------
// Membership
// -------------------------------

// Join adds n. It walks the current routing path towards n's id from the
// smallest member, exchanging routing table entries in both directions at
// every visited node, then registers n in every leaf set and vice versa.
// Afterwards every key that now routes elsewhere moves to its new owner.
func (m *Mesh) Join(n domain.Node) error {
	if err := m.space.IsValidID(n.ID); err != nil {
		return err
	}
	i := m.search(n.ID)
	if i < len(m.order) && m.nodes.MustGet(m.order[i]).node.ID == n.ID {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentifier, n)
	}

	mn := newMeshNode(m.space, n, storage.NewMemoryStorage(m.lgr.Named("storage").WithNode(n)))
	h := m.nodes.Insert(mn)
	mn.self = h

	if len(m.order) > 0 {
		m.joinWalk(mn)
	}
	m.order = slices.Insert(m.order, i, h)

	for _, other := range m.order {
		if other == h {
			continue
		}
		mn.updateLeafSet(other, m.nodes, m.leafSize)
		m.nodes.MustGet(other).updateLeafSet(h, m.nodes, m.leafSize)
	}

	m.epoch++
	m.stats.ObserveJoin()
	m.rebalance()
	m.lgr.Info("mesh: node joined", logger.FNode("node", n), logger.F("members", len(m.order)))
	return nil
}

func (m *Mesh) joinWalk(mn *meshNode) {
	maxSteps := bits.Len(uint(len(m.order)+1)) - 1 + joinWalkSlack
	curr := m.nodes.MustGet(m.order[0])
	steps := 0
	for {
		steps++
		next, _ := curr.route(m.space, m.nodes, mn.node.ID)

		curr.updateRoutingTable(m.space, mn.self, mn.node.ID)
		mn.updateRoutingTable(m.space, curr.self, curr.node.ID)

		if next == curr.self || steps >= maxSteps {
			break
		}
		curr = m.nodes.MustGet(next)
	}
	m.lgr.Debug("mesh: join walk finished", logger.FNode("node", mn.node), logger.F("steps", steps))
}

// rebalance moves every stored key whose route from the default entry no
// longer ends at its holder onto the member it now routes to.
func (m *Mesh) rebalance() {
	total := 0
	for _, h := range m.order {
		src := m.nodes.MustGet(h)
		owners := make(map[string]domain.ID)
		moved := src.store.Take(func(key string) bool {
			res, err := m.lookupFrom(m.order[0], m.space.NewIdFromString(key), false)
			if err != nil || res.Owner.ID == src.node.ID {
				return false
			}
			owners[key] = res.Owner.ID
			return true
		})
		for key, recs := range moved {
			dst, _ := m.Store(owners[key])
			dst.Merge(map[string][]domain.Record{key: recs})
		}
		total += len(moved)
	}
	if total > 0 {
		m.stats.ObserveTransfer(total)
		m.lgr.Debug("mesh: keys rebalanced", logger.F("keys", total))
	}
}

// Leave removes the member with id and strips it from every leaf set and
// routing table. Unlike Join, no rebalance runs afterwards: keys stored on
// surviving members stay where they are even when routing now ends at a
// different member, so such keys read as missing until the next join.
// Later routes fall back to the greedy scan where tables are now sparse.
func (m *Mesh) Leave(id domain.ID) (domain.Node, error) {
	h, ok := m.handleOf(id)
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: member %s", domain.ErrNotFound, id.ToHexString())
	}
	mn := m.nodes.MustGet(h)

	if len(m.order) == 1 {
		mn.store.Clear()
		m.nodes.Remove(h)
		m.order = nil
		m.epoch++
		m.stats.ObserveLeave()
		m.lgr.Info("mesh: last node left, overlay is empty", logger.FNode("node", mn.node))
		return mn.node, nil
	}

	m.order = slices.DeleteFunc(m.order, func(o arena.Handle) bool { return o == h })
	m.nodes.Remove(h)
	for _, other := range m.order {
		m.nodes.MustGet(other).forget(h, m.nodes)
	}
	m.epoch++
	m.stats.ObserveLeave()

	if m.migrate {
		m.rehome(mn)
		m.rebalance()
	}
	m.lgr.Info("mesh: node left", logger.FNode("node", mn.node), logger.F("members", len(m.order)))
	return mn.node, nil
}

// rehome re-routes every entry of a departed node from the remaining
// members.
func (m *Mesh) rehome(gone *meshNode) {
	moved := gone.store.Take(func(string) bool { return true })
	for key, recs := range moved {
		res, err := m.lookupFrom(m.order[0], m.space.NewIdFromString(key), false)
		if err != nil {
			m.lgr.Error("mesh: migration lookup failed", logger.F("key", key), logger.FErr(err))
			continue
		}
		dst, _ := m.Store(res.Owner.ID)
		dst.Merge(map[string][]domain.Record{key: recs})
	}
	m.stats.ObserveTransfer(len(moved))
	m.lgr.Debug("mesh: entries migrated on leave", logger.FNode("from", gone.node), logger.F("keys", len(moved)))
}

// -------------------------------
// Routing
// -------------------------------

// Lookup routes key from the smallest member.
func (m *Mesh) Lookup(key domain.ID) (dht.Lookup, error) {
	if len(m.order) == 0 {
		return dht.Lookup{}, domain.ErrEmptyOverlay
	}
	return m.lookupFrom(m.order[0], key, true)
}

// LookupFrom routes key starting at the member with id entry.
func (m *Mesh) LookupFrom(entry, key domain.ID) (dht.Lookup, error) {
	if len(m.order) == 0 {
		return dht.Lookup{}, domain.ErrEmptyOverlay
	}
	h, ok := m.handleOf(entry)
	if !ok {
		return dht.Lookup{}, fmt.Errorf("%w: entry %s", domain.ErrNotFound, entry.ToHexString())
	}
	return m.lookupFrom(h, key, true)
}

// lookupFrom follows route until a node answers itself or the hop bound
// is reached. Every route call counts as one hop.
func (m *Mesh) lookupFrom(h arena.Handle, key domain.ID, observe bool) (dht.Lookup, error) {
	start := time.Now()
	curr, ok := m.nodes.Get(h)
	if !ok {
		return dht.Lookup{}, fmt.Errorf("%w: entry handle %s does not resolve", domain.ErrInconsistentState, h)
	}

	hops, limit := 0, m.maxHops()
	for hops < limit {
		hops++
		next, fallback := curr.route(m.space, m.nodes, key)
		if fallback && observe {
			m.stats.ObserveFallback()
		}
		if next == curr.self {
			break
		}
		nn, ok := m.nodes.Get(next)
		if !ok {
			return dht.Lookup{}, fmt.Errorf("%w: route from %s to a dangling handle", domain.ErrInconsistentState, curr.node)
		}
		curr = nn
	}
	if observe {
		m.stats.ObserveLookup(hops, time.Since(start))
	}
	return dht.Lookup{Owner: curr.node, Hops: hops}, nil
}

// View returns the leaf set and routing table size of one member.
func (m *Mesh) View(id domain.ID) (dht.NodeView, bool) {
	h, ok := m.handleOf(id)
	if !ok {
		return dht.NodeView{}, false
	}
	mn := m.nodes.MustGet(h)
	v := dht.NodeView{
		Node:      mn.node,
		TableSize: mn.tableSize(),
		Keys:      mn.store.Len(),
		Records:   mn.store.RecordCount(),
	}
	for _, l := range mn.leafSet {
		v.LeafSet = append(v.LeafSet, m.nodes.MustGet(l).node)
	}
	return v, true
}
