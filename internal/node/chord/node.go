// Package chord implements the ring topology: members sorted on the
// identifier circle, each with a successor, a predecessor and a finger
// table of one entry per identifier bit.
package chord

import (
	"fmt"
	"sort"
	"time"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/arena"
	"MovieDHT/internal/node/dht"
	"MovieDHT/internal/node/storage"
)

const Protocol = "ring"

type ringNode struct {
	node  domain.Node
	rt    *RoutingTable
	store *storage.Storage
}

// Ring is the Chord-style topology. It owns every member through an
// arena; order holds the member handles sorted by id.
type Ring struct {
	lgr         logger.Logger
	space       domain.Space
	maintenance Maintenance
	migrate     bool

	nodes *arena.Arena[*ringNode]
	order []arena.Handle
	epoch uint64
	stats *dht.Stats
}

var _ dht.Topology = (*Ring)(nil)

func New(space domain.Space, opts ...Option) *Ring {
	r := &Ring{
		lgr:   &logger.NopLogger{},
		space: space,
		nodes: arena.New[*ringNode](),
		stats: dht.NewStats(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Ring) Protocol() string {
	return Protocol
}

func (r *Ring) Space() domain.Space {
	return r.space
}

func (r *Ring) Len() int {
	return len(r.order)
}

func (r *Ring) Epoch() uint64 {
	return r.epoch
}

func (r *Ring) Metrics() dht.RoutingMetrics {
	return r.stats.Snapshot(Protocol, len(r.order))
}

// Members returns the members sorted by id.
func (r *Ring) Members() []domain.Node {
	out := make([]domain.Node, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.nodes.MustGet(h).node)
	}
	return out
}

func (r *Ring) Store(id domain.ID) (*storage.Storage, bool) {
	h, ok := r.handleOf(id)
	if !ok {
		return nil, false
	}
	return r.nodes.MustGet(h).store, true
}

// -------------------------------
// Position helpers
// -------------------------------

func (r *Ring) idOf(h arena.Handle) (domain.ID, bool) {
	n, ok := r.nodes.Get(h)
	if !ok {
		return 0, false
	}
	return n.node.ID, true
}

// search returns the index of the first member whose id is >= id.
func (r *Ring) search(id domain.ID) int {
	return sort.Search(len(r.order), func(i int) bool {
		return r.nodes.MustGet(r.order[i]).node.ID >= id
	})
}

func (r *Ring) handleOf(id domain.ID) (arena.Handle, bool) {
	i := r.search(id)
	if i < len(r.order) && r.nodes.MustGet(r.order[i]).node.ID == id {
		return r.order[i], true
	}
	return arena.Nil, false
}

// successorOf returns the first member at or after p, wrapping to the
// smallest id.
func (r *Ring) successorOf(p domain.ID) arena.Handle {
	i := r.search(p)
	if i == len(r.order) {
		i = 0
	}
	return r.order[i]
}

// lastAtOrBefore returns the last member whose id is <= p, wrapping to
// the largest id.
func (r *Ring) lastAtOrBefore(p domain.ID) arena.Handle {
	i := sort.Search(len(r.order), func(i int) bool {
		return r.nodes.MustGet(r.order[i]).node.ID > p
	})
	if i == 0 {
		i = len(r.order)
	}
	return r.order[i-1]
}

// -------------------------------
// Routing
// -------------------------------

// FindSuccessor routes key starting at from and returns the owner and the
// hop count. A lone node answers itself in one hop; otherwise each
// forward to a closer preceding finger adds one hop. The walk is bounded
// by the member count, so it always terminates.
func (r *Ring) FindSuccessor(from arena.Handle, key domain.ID) (arena.Handle, int, error) {
	curr, ok := r.nodes.Get(from)
	if !ok {
		return arena.Nil, 0, fmt.Errorf("%w: entry handle %s does not resolve", domain.ErrInconsistentState, from)
	}
	if len(r.order) == 1 || curr.node.ID == key {
		return from, 1, nil
	}

	hops := 1
	for step := 0; step < len(r.order); step++ {
		succID, ok := r.idOf(curr.rt.Successor())
		if !ok {
			return arena.Nil, hops, fmt.Errorf("%w: successor of %s does not resolve", domain.ErrInconsistentState, curr.node)
		}
		if domain.InRange(key, curr.node.ID, succID, true) {
			return curr.rt.Successor(), hops, nil
		}
		next := curr.rt.ClosestPrecedingNode(curr.node.ID, key, r.idOf)
		if next == curr.rt.Self() {
			break
		}
		curr = r.nodes.MustGet(next)
		hops++
		if curr.node.ID == key {
			return next, hops, nil
		}
	}
	return curr.rt.Successor(), hops, nil
}

// Lookup routes key from the smallest member.
func (r *Ring) Lookup(key domain.ID) (dht.Lookup, error) {
	if len(r.order) == 0 {
		return dht.Lookup{}, domain.ErrEmptyOverlay
	}
	return r.lookupFrom(r.order[0], key)
}

// LookupFrom routes key starting at the member with id entry.
func (r *Ring) LookupFrom(entry, key domain.ID) (dht.Lookup, error) {
	if len(r.order) == 0 {
		return dht.Lookup{}, domain.ErrEmptyOverlay
	}
	h, ok := r.handleOf(entry)
	if !ok {
		return dht.Lookup{}, fmt.Errorf("%w: entry %s", domain.ErrNotFound, entry.ToHexString())
	}
	return r.lookupFrom(h, key)
}

func (r *Ring) lookupFrom(h arena.Handle, key domain.ID) (dht.Lookup, error) {
	start := time.Now()
	owner, hops, err := r.FindSuccessor(h, key)
	if err != nil {
		r.lgr.Error("lookup: routing invariant broken", logger.FErr(err))
		return dht.Lookup{}, err
	}
	r.stats.ObserveLookup(hops, time.Since(start))
	return dht.Lookup{Owner: r.nodes.MustGet(owner).node, Hops: hops}, nil
}

// Successor returns the immediate successor of the member with id.
func (r *Ring) Successor(id domain.ID) (domain.Node, error) {
	h, ok := r.handleOf(id)
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: member %s", domain.ErrNotFound, id.ToHexString())
	}
	succ, ok := r.nodes.Get(r.nodes.MustGet(h).rt.Successor())
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: successor of %s does not resolve", domain.ErrInconsistentState, id.ToHexString())
	}
	return succ.node, nil
}

// View returns the routing state of one member.
func (r *Ring) View(id domain.ID) (dht.NodeView, bool) {
	h, ok := r.handleOf(id)
	if !ok {
		return dht.NodeView{}, false
	}
	n := r.nodes.MustGet(h)
	v := dht.NodeView{
		Node:    n.node,
		Keys:    n.store.Len(),
		Records: n.store.RecordCount(),
	}
	if s, ok := r.nodes.Get(n.rt.Successor()); ok {
		succ := s.node
		v.Successor = &succ
	}
	if p, ok := r.nodes.Get(n.rt.Predecessor()); ok {
		pred := p.node
		v.Predecessor = &pred
	}
	for _, f := range n.rt.FingerList() {
		if fn, ok := r.nodes.Get(f); ok {
			v.Fingers = append(v.Fingers, fn.node)
		}
	}
	return v, true
}
