package chord

import "MovieDHT/internal/logger"

// Maintenance selects how finger tables are repaired after churn.
type Maintenance int

const (
	// Incremental patches only the fingers affected by a single join or
	// leave. Batches still fall back to a full rebuild.
	Incremental Maintenance = iota
	// FullRebuild recomputes every finger of every node on each change.
	FullRebuild
)

type Option func(*Ring)

func WithLogger(l logger.Logger) Option {
	return func(r *Ring) {
		r.lgr = l
	}
}

func WithMaintenance(m Maintenance) Option {
	return func(r *Ring) {
		r.maintenance = m
	}
}

// WithMigrateOnLeave makes a departing node hand its entries to its
// successor instead of dropping them.
func WithMigrateOnLeave(on bool) Option {
	return func(r *Ring) {
		r.migrate = on
	}
}
