package dht

import (
	"MovieDHT/internal/domain"
	"MovieDHT/internal/node/storage"
)

// Topology is the contract shared by the overlay strategies (ring, mesh
// and the modulo baseline). The facade selects one at construction and
// drives it through this interface only.
//
// Implementations are not safe for concurrent mutation. Read-only
// methods (Lookup, LookupFrom, Members, Store, View, Metrics) may run
// concurrently with each other as long as no mutation is in flight.
type Topology interface {
	// Protocol returns the strategy name ("ring", "mesh", "modulo").
	Protocol() string

	// Space returns the identifier space the topology was built on.
	Space() domain.Space

	// Join adds a member whose id the caller has already derived from its
	// name. It fails with domain.ErrDuplicateIdentifier on id collision.
	Join(n domain.Node) error

	// Leave removes the member with the given id and returns it. It fails
	// with domain.ErrNotFound when no such member exists. Removing the
	// last member clears its store.
	Leave(id domain.ID) (domain.Node, error)

	// Len returns the number of members.
	Len() int

	// Members returns all members sorted by id.
	Members() []domain.Node

	// Lookup routes key from the default entry member.
	Lookup(key domain.ID) (Lookup, error)

	// LookupFrom routes key starting at the member with id entry.
	LookupFrom(entry, key domain.ID) (Lookup, error)

	// Store returns the record store of the member with the given id.
	Store(id domain.ID) (*storage.Storage, bool)

	// View returns a debugging snapshot of one member.
	View(id domain.ID) (NodeView, bool)

	// Epoch is bumped by every membership change.
	Epoch() uint64

	// Metrics returns live routing statistics.
	Metrics() RoutingMetrics
}

// Lookup is the result of routing a key: the member that owns it and the
// number of hops the route took. Hops is at least 1.
type Lookup struct {
	Owner domain.Node
	Hops  int
}

// NodeView is a read-only picture of one member's routing state.
type NodeView struct {
	Node        domain.Node   `json:"node"`
	Successor   *domain.Node  `json:"successor,omitempty"`
	Predecessor *domain.Node  `json:"predecessor,omitempty"`
	Fingers     []domain.Node `json:"fingers,omitempty"`
	LeafSet     []domain.Node `json:"leaf_set,omitempty"`
	TableSize   int           `json:"routing_entries,omitempty"`
	Keys        int           `json:"keys"`
	Records     int           `json:"records"`
}
