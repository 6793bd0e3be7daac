package domain

import "errors"

// Error taxonomy shared by the topologies and the facade.
var (
	// ErrEmptyOverlay is returned when an operation needs at least one node.
	ErrEmptyOverlay = errors.New("dht: no nodes in the overlay")

	// ErrDuplicateIdentifier is returned when a join hashes onto an existing id.
	ErrDuplicateIdentifier = errors.New("dht: duplicate identifier")

	// ErrNotFound is returned when a leave target does not exist.
	ErrNotFound = errors.New("dht: not found")

	// ErrInconsistentState signals a broken routing invariant. It is fatal
	// for the operation and never retried.
	ErrInconsistentState = errors.New("dht: inconsistent topology state")

	// ErrInvalidKey is returned for keys that normalise to the empty string.
	ErrInvalidKey = errors.New("dht: invalid key")

	// ErrInvalidID is returned for identifiers outside the space.
	ErrInvalidID = errors.New("dht: invalid id")

	// ErrInvalidConfig is returned for out-of-range parameters.
	ErrInvalidConfig = errors.New("dht: invalid config")

	// ErrUnknownTopology is returned for an unsupported protocol name.
	ErrUnknownTopology = errors.New("dht: unknown topology")
)
