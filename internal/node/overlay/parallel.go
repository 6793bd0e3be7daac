package overlay

import (
	"context"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"

	"golang.org/x/sync/errgroup"
)

type probe struct {
	entry   domain.Node
	hops    int
	owner   domain.Node
	records []domain.Record
}

// GetParallel routes key from several evenly spaced entry members at
// once. Every probe runs to completion; the result carries the records of
// the lowest-hop probe that found the key and that probe's hop count, or
// the lowest hop count overall when no probe found it. Replicas are not
// consulted. On the mesh, entries other than the default often route to a
// different member than the one holding the key, so many probes miss and
// the answer comes from whichever probe reaches the holder.
func (d *DHT) GetParallel(ctx context.Context, key string) (res Result, err error) {
	ctx, span := d.startSpan(ctx, "overlay.GetParallel", key)
	defer func() { d.endSpan(span, "get_parallel", res.Hops, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	norm, kid, err := d.prepare(key)
	if err != nil {
		return Result{}, err
	}
	d.hot.RecordAccess(norm)

	entries := spread(d.topo.Members(), d.probes)
	probes := make([]probe, len(entries))

	g, _ := errgroup.WithContext(ctx)
	for i, entry := range entries {
		g.Go(func() error {
			l, err := d.topo.LookupFrom(entry.ID, kid)
			if err != nil {
				return err
			}
			probes[i] = probe{entry: entry, hops: l.Hops, owner: l.Owner, records: d.read(l.Owner, norm)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, d.inconsistent(err)
	}

	best, hit := pickProbe(probes)
	d.lgr.Debug("overlay: parallel lookup",
		logger.F("key", norm),
		logger.F("probes", len(probes)),
		logger.FNode("entry", best.entry),
		logger.F("hops", best.hops),
		logger.F("hit", hit))
	return Result{
		Key:     norm,
		Records: best.records,
		Hops:    best.hops,
		Owner:   best.owner,
		Primary: best.owner,
	}, nil
}

// pickProbe returns the lowest-hop probe that found records, or the
// lowest-hop probe overall. Ties keep the earlier entry.
func pickProbe(probes []probe) (probe, bool) {
	var best probe
	found := false
	for i, p := range probes {
		hit := len(p.records) > 0
		switch {
		case i == 0:
			best, found = p, hit
		case hit && !found:
			best, found = p, true
		case hit == found && p.hops < best.hops:
			best = p
		}
	}
	return best, found
}

// spread picks k members at evenly spaced positions of the sorted
// membership, all distinct.
func spread(members []domain.Node, k int) []domain.Node {
	n := len(members)
	k = min(k, n)
	out := make([]domain.Node, 0, k)
	for i := range k {
		out = append(out, members[i*n/k])
	}
	return out
}
