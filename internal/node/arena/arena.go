// Package arena stores overlay nodes in a slot table addressed by
// generation-checked handles.
//
// Topologies keep successor, predecessor, finger, leaf-set and routing
// table links as Handles instead of pointers. Removing a node bumps the
// slot generation, so every stale handle that still names the slot stops
// resolving instead of aliasing whatever node reuses it.
package arena

import "fmt"

// Handle addresses one arena slot. The zero Handle is Nil and never
// resolves.
type Handle struct {
	idx uint32
	gen uint32
}

// Nil is the handle that refers to nothing.
var Nil Handle

// IsNil reports whether h is the zero handle.
func (h Handle) IsNil() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	if h.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("#%d.%d", h.idx, h.gen)
}

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Arena owns values of type T. It is not safe for concurrent mutation;
// the owning topology serialises writers.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// New returns an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		// Wrapped; generation 0 is reserved for Nil.
		s.gen = 1
	}
	s.live = true
	s.val = v
	a.live++
	return Handle{idx: idx, gen: s.gen}
}

// Get resolves h. The boolean is false for Nil, removed or stale handles.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if !a.Valid(h) {
		return zero, false
	}
	return a.slots[h.idx].val, true
}

// MustGet resolves h and panics on a dangling handle.
func (a *Arena[T]) MustGet(h Handle) T {
	v, ok := a.Get(h)
	if !ok {
		panic(fmt.Sprintf("arena: dangling handle %s", h))
	}
	return v
}

// Valid reports whether h names a live slot of the current generation.
func (a *Arena[T]) Valid(h Handle) bool {
	if h.IsNil() || int(h.idx) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.idx]
	return s.live && s.gen == h.gen
}

// Remove releases the slot named by h and returns the value it held.
// Removing a stale handle is a no-op reported by the boolean.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !a.Valid(h) {
		return zero, false
	}
	s := &a.slots[h.idx]
	v := s.val
	s.val = zero
	s.live = false
	a.free = append(a.free, h.idx)
	a.live--
	return v, true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.live
}
