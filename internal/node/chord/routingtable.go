package chord

import (
	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/arena"
)

// RoutingTable holds one ring node's links. Every link is an arena handle
// into the owning Ring, never a direct pointer.
type RoutingTable struct {
	self        arena.Handle
	space       domain.Space
	successor   arena.Handle
	predecessor arena.Handle
	fingers     []arena.Handle // fingers[i] covers (self + 2^i) mod 2^b
}

func NewRoutingTable(self arena.Handle, space domain.Space) *RoutingTable {
	return &RoutingTable{
		self:    self,
		space:   space,
		fingers: make([]arena.Handle, space.Bits),
	}
}

func (rt *RoutingTable) Self() arena.Handle {
	return rt.self
}

func (rt *RoutingTable) Space() domain.Space {
	return rt.space
}

func (rt *RoutingTable) Successor() arena.Handle {
	return rt.successor
}

// SetSuccessor also sets finger 0, which always equals the successor.
func (rt *RoutingTable) SetSuccessor(h arena.Handle) {
	rt.successor = h
	if len(rt.fingers) > 0 {
		rt.fingers[0] = h
	}
}

func (rt *RoutingTable) Predecessor() arena.Handle {
	return rt.predecessor
}

func (rt *RoutingTable) SetPredecessor(h arena.Handle) {
	rt.predecessor = h
}

func (rt *RoutingTable) Finger(i int) arena.Handle {
	if i >= 0 && i < len(rt.fingers) {
		return rt.fingers[i]
	}
	return arena.Nil
}

func (rt *RoutingTable) SetFinger(i int, h arena.Handle) {
	if i >= 0 && i < len(rt.fingers) {
		rt.fingers[i] = h
	}
}

// FingerList returns a copy of the finger table.
func (rt *RoutingTable) FingerList() []arena.Handle {
	out := make([]arena.Handle, len(rt.fingers))
	copy(out, rt.fingers)
	return out
}

// ClosestPrecedingNode returns the furthest finger that lies strictly
// inside (self, key), or self when none does. idOf resolves a handle to
// its identifier and reports false for dangling handles, which are
// skipped.
func (rt *RoutingTable) ClosestPrecedingNode(selfID, key domain.ID, idOf func(arena.Handle) (domain.ID, bool)) arena.Handle {
	// Scan fingers from furthest to closest
	for i := len(rt.fingers) - 1; i >= 0; i-- {
		f := rt.fingers[i]
		if f.IsNil() {
			continue
		}
		fid, ok := idOf(f)
		if !ok {
			continue
		}
		if domain.InRange(fid, selfID, key, false) {
			return f
		}
	}
	return rt.self
}
