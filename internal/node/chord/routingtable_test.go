package chord

import (
	"testing"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/arena"
)

// handles builds an arena of nodes with the given ids and a resolver.
func handles(ids ...domain.ID) ([]arena.Handle, func(arena.Handle) (domain.ID, bool)) {
	a := arena.New[domain.ID]()
	hs := make([]arena.Handle, len(ids))
	for i, id := range ids {
		hs[i] = a.Insert(id)
	}
	return hs, a.Get
}

func TestNewRoutingTable(t *testing.T) {
	space := domain.MustSpace(8, domain.HashXX)
	hs, _ := handles(0x80)

	rt := NewRoutingTable(hs[0], space)

	if rt.Self() != hs[0] {
		t.Errorf("Self() returned %v, expected %v", rt.Self(), hs[0])
	}
	if rt.Space().Bits != 8 {
		t.Errorf("Space().Bits = %d, expected 8", rt.Space().Bits)
	}
	if got := len(rt.FingerList()); got != 8 {
		t.Errorf("len(FingerList()) = %d, expected 8", got)
	}
	if !rt.Successor().IsNil() || !rt.Predecessor().IsNil() {
		t.Error("fresh table should have nil links")
	}
}

func TestSetSuccessorSetsFirstFinger(t *testing.T) {
	space := domain.MustSpace(8, domain.HashXX)
	hs, _ := handles(0x80, 0x90)

	rt := NewRoutingTable(hs[0], space)
	rt.SetSuccessor(hs[1])

	if rt.Successor() != hs[1] {
		t.Errorf("Successor() = %v, expected %v", rt.Successor(), hs[1])
	}
	if rt.Finger(0) != hs[1] {
		t.Errorf("Finger(0) = %v, expected the successor %v", rt.Finger(0), hs[1])
	}
}

func TestSetAndGetPredecessor(t *testing.T) {
	space := domain.MustSpace(8, domain.HashXX)
	hs, _ := handles(0x80, 0x70)

	rt := NewRoutingTable(hs[0], space)
	rt.SetPredecessor(hs[1])

	if rt.Predecessor() != hs[1] {
		t.Errorf("Predecessor() = %v, expected %v", rt.Predecessor(), hs[1])
	}
}

func TestClosestPrecedingNode(t *testing.T) {
	space := domain.MustSpace(8, domain.HashXX)
	// self 128, fingers at 130, 140, 150
	hs, resolve := handles(0x80, 0x82, 0x8C, 0x96)

	rt := NewRoutingTable(hs[0], space)
	rt.SetFinger(0, hs[1])
	rt.SetFinger(2, hs[2])
	rt.SetFinger(4, hs[3])

	// self (128) < 130 < 140 < target (145) < 150
	if got := rt.ClosestPrecedingNode(0x80, 0x91, resolve); got != hs[2] {
		t.Errorf("ClosestPrecedingNode(145) = %v, expected finger at 140 %v", got, hs[2])
	}

	// A finger equal to the target is not strictly preceding.
	if got := rt.ClosestPrecedingNode(0x80, 0x8C, resolve); got != hs[1] {
		t.Errorf("ClosestPrecedingNode(140) = %v, expected finger at 130 %v", got, hs[1])
	}

	// Nothing lies in (128, 129): no progress, answer self.
	if got := rt.ClosestPrecedingNode(0x80, 0x81, resolve); got != hs[0] {
		t.Errorf("ClosestPrecedingNode(129) = %v, expected self", got)
	}
}

func TestClosestPrecedingNodeWraps(t *testing.T) {
	space := domain.MustSpace(8, domain.HashXX)
	// self 240, fingers at 250 and 5 (past zero)
	hs, resolve := handles(0xF0, 0xFA, 0x05)

	rt := NewRoutingTable(hs[0], space)
	rt.SetFinger(3, hs[1])
	rt.SetFinger(4, hs[2])

	if got := rt.ClosestPrecedingNode(0xF0, 0x0A, resolve); got != hs[2] {
		t.Errorf("ClosestPrecedingNode(10) = %v, expected wrapped finger at 5 %v", got, hs[2])
	}
}

func TestClosestPrecedingNodeSkipsDangling(t *testing.T) {
	space := domain.MustSpace(8, domain.HashXX)
	a := arena.New[domain.ID]()
	self := a.Insert(0x10)
	near := a.Insert(0x20)
	gone := a.Insert(0x30)
	a.Remove(gone)

	rt := NewRoutingTable(self, space)
	rt.SetFinger(0, near)
	rt.SetFinger(5, gone)

	if got := rt.ClosestPrecedingNode(0x10, 0x40, a.Get); got != near {
		t.Errorf("ClosestPrecedingNode = %v, expected live finger %v", got, near)
	}
}
