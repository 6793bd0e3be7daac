package pastry

import "MovieDHT/internal/logger"

// DefaultLeafSize is the leaf set bound used when none is configured.
const DefaultLeafSize = 4

type Option func(*Mesh)

func WithLogger(l logger.Logger) Option {
	return func(m *Mesh) {
		m.lgr = l
	}
}

// WithLeafSize bounds every leaf set to size entries. Values below 1 are
// ignored.
func WithLeafSize(size int) Option {
	return func(m *Mesh) {
		if size > 0 {
			m.leafSize = size
		}
	}
}

// WithMigrateOnLeave makes a departing node re-route its entries to the
// remaining members instead of dropping them.
func WithMigrateOnLeave(on bool) Option {
	return func(m *Mesh) {
		m.migrate = on
	}
}
