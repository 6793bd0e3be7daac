package simple

import (
	"fmt"
	"testing"

	"MovieDHT/internal/domain"
)

func named(sp domain.Space, name string) domain.Node {
	return domain.Node{ID: sp.NewIdFromString(name), Name: name}
}

func TestModuloPlacement(t *testing.T) {
	sp := domain.MustSpace(64, domain.HashXX)
	m := New(sp)
	for _, name := range []string{"c", "a", "b"} {
		if err := m.Join(named(sp, name)); err != nil {
			t.Fatalf("Join(%s): %v", name, err)
		}
	}

	for i := 0; i < 50; i++ {
		key := sp.NewIdFromString(fmt.Sprintf("key%d", i))
		res, err := m.Lookup(key)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		want := []string{"a", "b", "c"}[uint64(key)%3]
		if res.Owner.Name != want {
			t.Errorf("key %d owned by %s, expected %s", i, res.Owner.Name, want)
		}
		if res.Hops != 1 {
			t.Errorf("hops = %d, expected 1", res.Hops)
		}
	}
}

func TestModuloRemapsOnJoin(t *testing.T) {
	sp := domain.MustSpace(64, domain.HashXX)
	m := New(sp)
	for i := 0; i < 4; i++ {
		if err := m.Join(named(sp, fmt.Sprintf("node%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	keys := make([]string, 200)
	for i := range keys {
		keys[i] = fmt.Sprintf("movie %d", i)
		res, _ := m.Lookup(sp.NewIdFromString(keys[i]))
		s, _ := m.Store(res.Owner.ID)
		s.Add(keys[i], domain.NewRecord(keys[i], nil))
	}

	if err := m.Join(named(sp, "node4")); err != nil {
		t.Fatal(err)
	}
	for _, k := range keys {
		res, _ := m.Lookup(sp.NewIdFromString(k))
		s, _ := m.Store(res.Owner.ID)
		if !s.Has(k) {
			t.Errorf("key %q not on its owner %s after join", k, res.Owner)
		}
	}
	if moved := m.Metrics().KeysTransferred; moved < 100 {
		t.Errorf("modulo placement should move most keys, moved %d of %d", moved, len(keys))
	}
}

func TestModuloErrors(t *testing.T) {
	sp := domain.MustSpace(64, domain.HashXX)
	m := New(sp)
	if _, err := m.Lookup(1); err != domain.ErrEmptyOverlay {
		t.Errorf("Lookup on empty = %v, expected ErrEmptyOverlay", err)
	}
	n := named(sp, "a")
	_ = m.Join(n)
	if err := m.Join(n); err == nil {
		t.Error("duplicate join accepted")
	}
	if _, err := m.Leave(12345); err == nil {
		t.Error("leave of unknown id accepted")
	}
	if _, err := m.Leave(n.ID); err != nil {
		t.Errorf("Leave: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after last leave", m.Len())
	}
}
