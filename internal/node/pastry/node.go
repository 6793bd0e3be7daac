package pastry

import (
	"slices"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/arena"
	"MovieDHT/internal/node/storage"
)

// digitBase is the routing table width: one column per hex digit.
const digitBase = 16

// meshNode is one mesh member. Leaf set and routing table entries are
// arena handles owned by the Mesh.
type meshNode struct {
	self  arena.Handle
	node  domain.Node
	idStr string // fixed-width hex rendering used for prefix comparison

	leafSet []arena.Handle
	leafMin domain.ID
	leafMax domain.ID

	// table[l][d] holds a node sharing exactly l leading digits with self
	// whose digit at position l is d.
	table [][digitBase]arena.Handle

	store *storage.Storage
}

func newMeshNode(space domain.Space, n domain.Node, store *storage.Storage) *meshNode {
	return &meshNode{
		node:  n,
		idStr: space.ToHexString(n.ID),
		table: make([][digitBase]arena.Handle, space.Digits),
		store: store,
	}
}

// updateLeafSet adds other to the leaf set, keeping the leafSize entries
// numerically closest to self, and refreshes the cached bounds.
func (n *meshNode) updateLeafSet(other arena.Handle, nodes *arena.Arena[*meshNode], leafSize int) {
	if other == n.self || slices.Contains(n.leafSet, other) {
		return
	}
	o, ok := nodes.Get(other)
	if !ok || o.node.ID == n.node.ID {
		return
	}
	n.leafSet = append(n.leafSet, other)
	slices.SortStableFunc(n.leafSet, func(a, b arena.Handle) int {
		da := domain.Distance(nodes.MustGet(a).node.ID, n.node.ID)
		db := domain.Distance(nodes.MustGet(b).node.ID, n.node.ID)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	if len(n.leafSet) > leafSize {
		n.leafSet = n.leafSet[:leafSize]
	}
	n.refreshLeafBounds(nodes)
}

func (n *meshNode) refreshLeafBounds(nodes *arena.Arena[*meshNode]) {
	for i, h := range n.leafSet {
		id := nodes.MustGet(h).node.ID
		if i == 0 || id < n.leafMin {
			n.leafMin = id
		}
		if i == 0 || id > n.leafMax {
			n.leafMax = id
		}
	}
}

// updateRoutingTable records other in its prefix slot unless the slot is
// already taken.
func (n *meshNode) updateRoutingTable(space domain.Space, other arena.Handle, otherID domain.ID) {
	if other == n.self {
		return
	}
	l := space.SharedPrefixLen(n.node.ID, otherID)
	if l >= len(n.table) {
		return
	}
	d := space.DigitAt(otherID, l)
	if n.table[l][d].IsNil() {
		n.table[l][d] = other
	}
}

// forget strips every reference to gone from the leaf set and routing
// table.
func (n *meshNode) forget(gone arena.Handle, nodes *arena.Arena[*meshNode]) {
	n.leafSet = slices.DeleteFunc(n.leafSet, func(h arena.Handle) bool { return h == gone })
	n.refreshLeafBounds(nodes)
	for l := range n.table {
		for d := range n.table[l] {
			if n.table[l][d] == gone {
				n.table[l][d] = arena.Nil
			}
		}
	}
}

func (n *meshNode) tableSize() int {
	c := 0
	for l := range n.table {
		for d := range n.table[l] {
			if !n.table[l][d].IsNil() {
				c++
			}
		}
	}
	return c
}

// route picks the next hop for key. The second result reports that the
// greedy fallback scan was used.
//
//  1. key inside [leafMin, leafMax]: the closest of leaf set and self.
//  2. key equal to self: self.
//  3. the routing table slot for the key's next digit, when populated.
//  4. otherwise the closest known node, self when none is closer.
func (n *meshNode) route(space domain.Space, nodes *arena.Arena[*meshNode], key domain.ID) (arena.Handle, bool) {
	if len(n.leafSet) > 0 && n.leafMin <= key && key <= n.leafMax {
		return n.closest(nodes, key, n.leafSet), false
	}

	l := space.SharedPrefixLen(n.node.ID, key)
	if l == space.Digits {
		return n.self, false
	}
	if next := n.table[l][space.DigitAt(key, l)]; nodes.Valid(next) {
		return next, false
	}

	known := slices.Clone(n.leafSet)
	for _, row := range n.table {
		for _, h := range row {
			if !h.IsNil() {
				known = append(known, h)
			}
		}
	}
	return n.closest(nodes, key, known), true
}

// closest returns the candidate numerically closest to key, keeping self
// unless another is strictly closer.
func (n *meshNode) closest(nodes *arena.Arena[*meshNode], key domain.ID, candidates []arena.Handle) arena.Handle {
	best := n.self
	bestDist := domain.Distance(n.node.ID, key)
	for _, h := range candidates {
		c, ok := nodes.Get(h)
		if !ok {
			continue
		}
		if d := domain.Distance(c.node.ID, key); d < bestDist {
			best, bestDist = h, d
		}
	}
	return best
}
