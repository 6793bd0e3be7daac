// Package replica derives backup holders on the ring.
//
// Backups start at the owner of the point diametrically opposite the key
// (hash + M/2) and continue along its successors, so a run of failures
// around the primary does not also take out the backups. The anchor is
// derived from the key rather than from the primary, which keeps the
// candidate list computable after the primary is gone.
package replica

import (
	"slices"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/dht"
)

// Ring is the part of the ring topology placement needs.
type Ring interface {
	Space() domain.Space
	Len() int
	Lookup(key domain.ID) (dht.Lookup, error)
	Successor(id domain.ID) (domain.Node, error)
}

// Placement computes backup holders for a fixed replication factor.
type Placement struct {
	factor int
}

// New returns a placement producing factor backups per key. A factor
// below 1 disables replication.
func New(factor int) Placement {
	return Placement{factor: max(factor, 0)}
}

func (p Placement) Factor() int {
	return p.factor
}

// Backups returns up to factor distinct holders other than primary, in
// read order, and the hop count of the lookup that located the first one.
// Fewer are returned when the ring has fewer other members.
func (p Placement) Backups(r Ring, key domain.ID, primary domain.ID) ([]domain.Node, int, error) {
	if p.factor == 0 || r.Len() < 2 {
		return nil, 0, nil
	}
	anchor := r.Space().Opposite(key)
	res, err := r.Lookup(anchor)
	if err != nil {
		return nil, 0, err
	}

	want := min(p.factor, r.Len()-1)
	out := make([]domain.Node, 0, want)
	cand := res.Owner
	for steps := 0; steps < r.Len() && len(out) < want; steps++ {
		if cand.ID != primary && !slices.ContainsFunc(out, func(n domain.Node) bool { return n.ID == cand.ID }) {
			out = append(out, cand)
		}
		if cand, err = r.Successor(cand.ID); err != nil {
			return out, res.Hops, err
		}
	}
	return out, res.Hops, nil
}
