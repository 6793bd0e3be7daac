package overlay

import (
	"fmt"

	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"
)

// batchJoiner is implemented by topologies that can absorb many joins
// with a single rebuild.
type batchJoiner interface {
	JoinBatch(nodes []domain.Node) error
}

// Join hashes name onto the space and adds it as a member.
func (d *DHT) Join(name string) (domain.Node, error) {
	n := domain.Node{ID: d.space.NewIdFromString(name), Name: name}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.topo.Join(n); err != nil {
		return domain.Node{}, fmt.Errorf("join %q: %w", name, err)
	}
	d.membershipChanged()
	d.metrics.ObserveJoin(d.topo.Len())
	d.lgr.Debug("overlay: member joined", logger.FNode("node", n), logger.F("members", d.topo.Len()))
	return n, nil
}

// JoinAll adds every name. Topologies that support it take the whole
// set in one rebuild; otherwise names join one at a time and the first
// failure stops the loop.
func (d *DHT) JoinAll(names []string) ([]domain.Node, error) {
	nodes := make([]domain.Node, len(names))
	for i, name := range names {
		nodes[i] = domain.Node{ID: d.space.NewIdFromString(name), Name: name}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	defer d.membershipChanged()

	if bj, ok := d.topo.(batchJoiner); ok && len(nodes) > 1 {
		if err := bj.JoinBatch(nodes); err != nil {
			return nil, fmt.Errorf("join batch: %w", err)
		}
		for range nodes {
			d.metrics.ObserveJoin(d.topo.Len())
		}
		d.lgr.Info("overlay: batch joined", logger.F("count", len(nodes)), logger.F("members", d.topo.Len()))
		return nodes, nil
	}

	for i, n := range nodes {
		if err := d.topo.Join(n); err != nil {
			return nodes[:i], fmt.Errorf("join %q: %w", n.Name, err)
		}
		d.metrics.ObserveJoin(d.topo.Len())
	}
	d.lgr.Info("overlay: joined", logger.F("count", len(nodes)), logger.F("members", d.topo.Len()))
	return nodes, nil
}

// Leave removes the member that joined under name.
func (d *DHT) Leave(name string) (domain.Node, error) {
	return d.LeaveID(d.space.NewIdFromString(name))
}

// LeaveID removes the member with the given id. Removing the last member
// empties the overlay and clears its store.
func (d *DHT) LeaveID(id domain.ID) (domain.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.topo.Leave(id)
	if err != nil {
		return domain.Node{}, fmt.Errorf("leave %s: %w", id.ToHexString(), err)
	}
	d.membershipChanged()
	d.metrics.ObserveLeave(d.topo.Len())
	d.lgr.Debug("overlay: member left", logger.FNode("node", n), logger.F("members", d.topo.Len()))
	return n, nil
}

// membershipChanged drops memoised routes. Callers hold the write lock.
func (d *DHT) membershipChanged() {
	if d.routes != nil {
		d.routes.Purge()
	}
}

// Len returns the number of members.
func (d *DHT) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.topo.Len()
}

// Nodes returns the members sorted by id.
func (d *DHT) Nodes() []domain.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.topo.Members()
}
