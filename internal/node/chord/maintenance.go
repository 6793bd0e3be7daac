package chord

import (
	"fmt"
	"slices"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/arena"
	"MovieDHT/internal/node/storage"

	"go.uber.org/multierr"
)

// Join inserts n into the ring, relinks successors and predecessors,
// repairs finger tables and pulls the keys n now owns from its successor.
func (r *Ring) Join(n domain.Node) error {
	h, err := r.insert(n)
	if err != nil {
		return err
	}
	r.relink()

	if len(r.order) == 1 {
		rn := r.nodes.MustGet(h)
		for i := 0; i < r.space.Bits; i++ {
			rn.rt.SetFinger(i, h)
		}
	} else if r.maintenance == FullRebuild {
		r.rebuildFingers()
	} else {
		r.patchFingersOnJoin(h)
	}
	r.transferKeys(h)

	r.epoch++
	r.stats.ObserveJoin()
	r.lgr.Info("ring: node joined", logger.FNode("node", n), logger.F("members", len(r.order)))
	return nil
}

// JoinBatch inserts several nodes as one membership change. Finger tables
// are always fully rebuilt for a batch.
func (r *Ring) JoinBatch(nodes []domain.Node) error {
	seen := make(map[domain.ID]bool, len(nodes))
	for _, n := range nodes {
		if err := r.space.IsValidID(n.ID); err != nil {
			return err
		}
		if _, ok := r.handleOf(n.ID); ok || seen[n.ID] {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentifier, n)
		}
		seen[n.ID] = true
	}
	if len(nodes) == 0 {
		return nil
	}

	added := make(map[arena.Handle]bool, len(nodes))
	for _, n := range nodes {
		h, err := r.insert(n)
		if err != nil {
			return err
		}
		added[h] = true
	}
	r.relink()
	r.rebuildFingers()

	// Keys of a new node sit on the first pre-existing node clockwise of it.
	for i, h := range r.order {
		if !added[h] {
			continue
		}
		var src arena.Handle
		for j := 1; j < len(r.order); j++ {
			cand := r.order[(i+j)%len(r.order)]
			if !added[cand] {
				src = cand
				break
			}
		}
		if src.IsNil() {
			break
		}
		r.moveArc(src, h)
	}

	r.epoch++
	for range nodes {
		r.stats.ObserveJoin()
	}
	r.lgr.Info("ring: batch joined", logger.F("added", len(nodes)), logger.F("members", len(r.order)))
	return nil
}

// Leave removes the member with id. The last member's store is cleared;
// otherwise its entries are dropped, or handed to the successor when
// migration on leave is enabled.
func (r *Ring) Leave(id domain.ID) (domain.Node, error) {
	h, ok := r.handleOf(id)
	if !ok {
		return domain.Node{}, fmt.Errorf("%w: member %s", domain.ErrNotFound, id.ToHexString())
	}
	rn := r.nodes.MustGet(h)

	if len(r.order) == 1 {
		rn.store.Clear()
		r.nodes.Remove(h)
		r.order = nil
		r.epoch++
		r.stats.ObserveLeave()
		r.lgr.Info("ring: last node left, overlay is empty", logger.FNode("node", rn.node))
		return rn.node, nil
	}

	if r.migrate {
		if succ, ok := r.nodes.Get(rn.rt.Successor()); ok {
			moved := rn.store.Take(func(string) bool { return true })
			succ.store.Merge(moved)
			r.stats.ObserveTransfer(len(moved))
			r.lgr.Debug("ring: entries migrated on leave",
				logger.FNode("from", rn.node), logger.FNode("to", succ.node), logger.F("keys", len(moved)))
		}
	}

	i := slices.Index(r.order, h)
	r.order = slices.Delete(r.order, i, i+1)
	r.nodes.Remove(h)
	r.relink()
	if r.maintenance == FullRebuild {
		r.rebuildFingers()
	} else {
		r.patchFingersOnLeave(h)
	}

	r.epoch++
	r.stats.ObserveLeave()
	r.lgr.Info("ring: node left", logger.FNode("node", rn.node), logger.F("members", len(r.order)))
	return rn.node, nil
}

func (r *Ring) insert(n domain.Node) (arena.Handle, error) {
	if err := r.space.IsValidID(n.ID); err != nil {
		return arena.Nil, err
	}
	i := r.search(n.ID)
	if i < len(r.order) && r.nodes.MustGet(r.order[i]).node.ID == n.ID {
		return arena.Nil, fmt.Errorf("%w: %s", domain.ErrDuplicateIdentifier, n)
	}
	rn := &ringNode{
		node:  n,
		store: storage.NewMemoryStorage(r.lgr.Named("storage").WithNode(n)),
	}
	h := r.nodes.Insert(rn)
	rn.rt = NewRoutingTable(h, r.space)
	r.order = slices.Insert(r.order, i, h)
	return h, nil
}

// relink recomputes every successor and predecessor from sorted order.
func (r *Ring) relink() {
	size := len(r.order)
	for i, h := range r.order {
		rn := r.nodes.MustGet(h)
		rn.rt.SetSuccessor(r.order[(i+1)%size])
		rn.rt.SetPredecessor(r.order[(i-1+size)%size])
	}
}

// fixFinger recomputes finger i of rn from scratch: the first member at or
// after (self + 2^i) mod 2^b.
func (r *Ring) fixFinger(rn *ringNode, i int) {
	rn.rt.SetFinger(i, r.successorOf(r.space.FingerStart(rn.node.ID, i)))
}

// rebuildFingers recomputes every finger of every member.
func (r *Ring) rebuildFingers() {
	for _, h := range r.order {
		rn := r.nodes.MustGet(h)
		for i := 0; i < r.space.Bits; i++ {
			r.fixFinger(rn, i)
		}
	}
	r.stats.ObserveFingerPatches(len(r.order) * r.space.Bits)
	r.lgr.Debug("ring: finger tables rebuilt", logger.F("members", len(r.order)))
}

// patchFingersOnJoin computes the new node's fingers and redirects every
// existing finger whose start now falls in (pred(n), n].
//
// For offset 2^i the candidates form a contiguous run of members ending at
// the last member at or before n - 2^i, so the walk goes backward from
// there and stops at the first member whose finger start lies outside the
// arc, or after one full lap.
func (r *Ring) patchFingersOnJoin(h arena.Handle) {
	rn := r.nodes.MustGet(h)
	for i := 0; i < r.space.Bits; i++ {
		r.fixFinger(rn, i)
	}

	predID := r.nodes.MustGet(rn.rt.Predecessor()).node.ID
	patched := 0
	for i := 0; i < r.space.Bits; i++ {
		p := r.lastAtOrBefore(r.space.SubMod(rn.node.ID, uint64(1)<<uint(i)))
		for steps := 0; steps < len(r.order); steps++ {
			pn := r.nodes.MustGet(p)
			if !domain.InRange(r.space.FingerStart(pn.node.ID, i), predID, rn.node.ID, true) {
				break
			}
			if p != h {
				pn.rt.SetFinger(i, h)
				patched++
			}
			p = pn.rt.Predecessor()
		}
	}
	r.stats.ObserveFingerPatches(patched)
	r.lgr.Debug("ring: fingers patched on join", logger.FNode("node", rn.node), logger.F("patched", patched))
}

// patchFingersOnLeave recomputes every finger that referenced the removed
// handle. The handle no longer resolves, so it only matches by equality.
func (r *Ring) patchFingersOnLeave(removed arena.Handle) {
	patched := 0
	for _, h := range r.order {
		rn := r.nodes.MustGet(h)
		for i := 0; i < r.space.Bits; i++ {
			if rn.rt.Finger(i) == removed {
				r.fixFinger(rn, i)
				patched++
			}
		}
	}
	r.stats.ObserveFingerPatches(patched)
	r.lgr.Debug("ring: fingers patched on leave", logger.F("patched", patched))
}

// transferKeys moves the keys of the new node's successor that hash into
// (pred, new] onto the new node.
func (r *Ring) transferKeys(h arena.Handle) {
	if len(r.order) < 2 {
		return
	}
	r.moveArc(r.nodes.MustGet(h).rt.Successor(), h)
}

// moveArc moves from src to dst every key hashing into (pred(dst), dst].
func (r *Ring) moveArc(src, dst arena.Handle) {
	from := r.nodes.MustGet(src)
	to := r.nodes.MustGet(dst)
	predID := r.nodes.MustGet(to.rt.Predecessor()).node.ID
	moved := from.store.Take(func(key string) bool {
		return domain.InRange(r.space.NewIdFromString(key), predID, to.node.ID, true)
	})
	if len(moved) == 0 {
		return
	}
	to.store.Merge(moved)
	r.stats.ObserveTransfer(len(moved))
	r.lgr.Debug("ring: keys transferred",
		logger.FNode("from", from.node), logger.FNode("to", to.node), logger.F("keys", len(moved)))
}

// Verify checks the ring and finger invariants: successor and predecessor
// links agree with sorted order, they form one cycle over all members,
// and every finger equals the from-scratch successor of its start.
func (r *Ring) Verify() error {
	var errs []error
	size := len(r.order)
	for i, h := range r.order {
		rn, ok := r.nodes.Get(h)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: member %d does not resolve", domain.ErrInconsistentState, i))
			continue
		}
		if i > 0 && r.nodes.MustGet(r.order[i-1]).node.ID >= rn.node.ID {
			errs = append(errs, fmt.Errorf("%w: order broken at %s", domain.ErrInconsistentState, rn.node))
		}
		if rn.rt.Successor() != r.order[(i+1)%size] {
			errs = append(errs, fmt.Errorf("%w: bad successor on %s", domain.ErrInconsistentState, rn.node))
		}
		if rn.rt.Predecessor() != r.order[(i-1+size)%size] {
			errs = append(errs, fmt.Errorf("%w: bad predecessor on %s", domain.ErrInconsistentState, rn.node))
		}
		for f := 0; f < r.space.Bits; f++ {
			if want := r.successorOf(r.space.FingerStart(rn.node.ID, f)); rn.rt.Finger(f) != want {
				errs = append(errs, fmt.Errorf("%w: finger %d on %s", domain.ErrInconsistentState, f, rn.node))
			}
		}
	}

	// Walk the successor cycle once.
	if size > 0 {
		seen := make(map[arena.Handle]bool, size)
		h := r.order[0]
		for range size {
			if seen[h] {
				break
			}
			seen[h] = true
			rn, ok := r.nodes.Get(h)
			if !ok {
				break
			}
			h = rn.rt.Successor()
		}
		if len(seen) != size || h != r.order[0] {
			errs = append(errs, fmt.Errorf("%w: successor links do not form one cycle", domain.ErrInconsistentState))
		}
	}
	return multierr.Combine(errs...)
}
