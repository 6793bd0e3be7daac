package overlay

import (
	"context"
	"fmt"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
	"MovieDHT/internal/node/dht"
	"MovieDHT/internal/node/replica"
	"MovieDHT/internal/node/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is the answer to a read.
type Result struct {
	Key         string          `json:"key"`
	Records     []domain.Record `json:"records"`
	Hops        int             `json:"hops"`
	Owner       domain.Node     `json:"owner"`   // member that served the read
	Primary     domain.Node     `json:"primary"` // member the key routes to
	FromReplica bool            `json:"from_replica"`
}

// Found reports whether any record was returned.
func (r Result) Found() bool {
	return len(r.Records) > 0
}

// Put stores rec under key with the configured replication factor and
// returns the primary owner.
func (d *DHT) Put(ctx context.Context, key string, rec domain.Record) (domain.Node, error) {
	return d.PutReplicated(ctx, key, rec, d.place.Factor())
}

// PutReplicated stores rec on the owner of key and, on the ring, on r
// backups starting at the owner of the opposite point.
func (d *DHT) PutReplicated(ctx context.Context, key string, rec domain.Record, r int) (owner domain.Node, err error) {
	_, span := d.startSpan(ctx, "overlay.Put", key)
	defer func() { d.endSpan(span, "put", 0, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	norm, kid, err := d.prepare(key)
	if err != nil {
		return domain.Node{}, err
	}
	l, err := d.locate(kid)
	if err != nil {
		return domain.Node{}, err
	}
	if err := d.write(l.Owner, norm, rec); err != nil {
		return domain.Node{}, err
	}
	written := 1

	backups, _, err := d.backups(kid, l.Owner.ID, r)
	if err != nil {
		return domain.Node{}, err
	}
	for _, b := range backups {
		if err := d.write(b, norm, rec); err != nil {
			return domain.Node{}, err
		}
		written++
	}
	d.metrics.AddRecords(written)
	span.SetAttributes(attribute.Int("dht.replicas", len(backups)))
	return l.Owner, nil
}

// Get reads every record stored under key. An absent key is not an
// error: the result simply has no records. On the ring a primary miss
// falls through to the backups, each further candidate costing a hop.
func (d *DHT) Get(ctx context.Context, key string) (res Result, err error) {
	_, span := d.startSpan(ctx, "overlay.Get", key)
	defer func() { d.endSpan(span, "get", res.Hops, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	norm, kid, err := d.prepare(key)
	if err != nil {
		return Result{}, err
	}
	l, err := d.locate(kid)
	if err != nil {
		return Result{}, err
	}
	d.hot.RecordAccess(norm)

	res = Result{Key: norm, Hops: l.Hops, Owner: l.Owner, Primary: l.Owner}
	if recs := d.read(l.Owner, norm); len(recs) > 0 {
		res.Records = recs
		return res, nil
	}
	return d.readReplicas(res, kid)
}

// readReplicas walks the backup candidates of kid after a primary miss.
func (d *DHT) readReplicas(res Result, kid domain.ID) (Result, error) {
	backups, hops, err := d.backups(kid, res.Primary.ID, d.place.Factor())
	if err != nil || len(backups) == 0 {
		return res, err
	}
	res.Hops += hops
	for i, b := range backups {
		if i > 0 {
			res.Hops++
		}
		if recs := d.read(b, res.Key); len(recs) > 0 {
			res.Records = recs
			res.Owner = b
			res.FromReplica = true
			d.stats.ObserveReplicaRead()
			d.metrics.ObserveReplicaRead()
			d.lgr.Debug("overlay: served from replica",
				logger.F("key", res.Key), logger.FNode("replica", b), logger.F("hops", res.Hops))
			return res, nil
		}
	}
	return res, nil
}

// Update replaces the record identified by id under key on the primary
// and on every backup holding it. It reports whether any copy changed.
func (d *DHT) Update(ctx context.Context, key, id string, rec domain.Record) (ok bool, err error) {
	_, span := d.startSpan(ctx, "overlay.Update", key)
	defer func() { d.endSpan(span, "update", 0, err) }()

	ok, _, err = d.mutate(key, func(s *storage.Storage, norm string) bool {
		return s.Update(norm, id, rec)
	})
	return ok, err
}

// Delete removes the record identified by id under key from the primary
// and every backup holding it. It reports whether any copy was removed;
// deleting an absent pair returns false and leaves every store as is.
func (d *DHT) Delete(ctx context.Context, key, id string) (ok bool, err error) {
	_, span := d.startSpan(ctx, "overlay.Delete", key)
	defer func() { d.endSpan(span, "delete", 0, err) }()

	ok, left, err := d.mutate(key, func(s *storage.Storage, norm string) bool {
		return s.Delete(norm, id)
	})
	if ok && !left {
		if norm, nerr := domain.NormalizeKey(key); nerr == nil {
			d.hot.Forget(norm)
		}
	}
	return ok, err
}

// mutate runs apply on every holder of key. It reports whether any copy
// changed and whether any holder still has records under key afterwards.
func (d *DHT) mutate(key string, apply func(s *storage.Storage, norm string) bool) (changed, left bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	norm, kid, err := d.prepare(key)
	if err != nil {
		return false, false, err
	}
	l, err := d.locate(kid)
	if err != nil {
		return false, false, err
	}
	holders := []domain.Node{l.Owner}
	backups, _, err := d.backups(kid, l.Owner.ID, d.place.Factor())
	if err != nil {
		return false, false, err
	}
	holders = append(holders, backups...)

	for _, n := range holders {
		s, ok := d.topo.Store(n.ID)
		if !ok {
			return false, false, d.inconsistent(fmt.Errorf("%w: no store for %s", domain.ErrInconsistentState, n))
		}
		if apply(s, norm) {
			changed = true
		}
		if s.Has(norm) {
			left = true
		}
	}
	return changed, left, nil
}

// prepare checks the overlay is populated and hashes the normalised key.
func (d *DHT) prepare(key string) (string, domain.ID, error) {
	if d.topo.Len() == 0 {
		return "", 0, domain.ErrEmptyOverlay
	}
	norm, err := domain.NormalizeKey(key)
	if err != nil {
		return "", 0, err
	}
	return norm, d.space.NewIdFromString(norm), nil
}

// locate routes kid from the default entry, through the route cache when
// one is configured.
func (d *DHT) locate(kid domain.ID) (dht.Lookup, error) {
	if d.routes != nil {
		epoch := d.topo.Epoch()
		if l, ok := d.routes.Get(epoch, kid); ok {
			d.stats.ObserveCache(true)
			return l, nil
		}
		d.stats.ObserveCache(false)
		l, err := d.topo.Lookup(kid)
		if err != nil {
			return dht.Lookup{}, d.inconsistent(err)
		}
		d.routes.Add(epoch, kid, l)
		return l, nil
	}
	l, err := d.topo.Lookup(kid)
	if err != nil {
		return dht.Lookup{}, d.inconsistent(err)
	}
	return l, nil
}

// backups returns up to r backup holders of kid, or none when the
// topology does not place replicas.
func (d *DHT) backups(kid, primary domain.ID, r int) ([]domain.Node, int, error) {
	if d.ring == nil || r <= 0 {
		return nil, 0, nil
	}
	place := d.place
	if r != place.Factor() {
		place = replica.New(r)
	}
	nodes, hops, err := place.Backups(d.ring, kid, primary)
	if err != nil {
		return nil, 0, d.inconsistent(err)
	}
	return nodes, hops, nil
}

func (d *DHT) write(n domain.Node, key string, rec domain.Record) error {
	s, ok := d.topo.Store(n.ID)
	if !ok {
		return d.inconsistent(fmt.Errorf("%w: no store for %s", domain.ErrInconsistentState, n))
	}
	s.Add(key, rec)
	return nil
}

func (d *DHT) read(n domain.Node, key string) []domain.Record {
	s, ok := d.topo.Store(n.ID)
	if !ok {
		return nil
	}
	return s.Get(key)
}

func (d *DHT) inconsistent(err error) error {
	d.lgr.Error("overlay: routing invariant violated", logger.FErr(err))
	return err
}

func (d *DHT) startSpan(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("dht.protocol", d.topo.Protocol()),
		attribute.String("dht.key", key),
	))
}

func (d *DHT) endSpan(span trace.Span, op string, hops int, err error) {
	d.metrics.ObserveOp(op, hops, err == nil)
	if hops > 0 {
		span.SetAttributes(attribute.Int("dht.hops", hops))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
