package simple

import "MovieDHT/internal/logger"

// Option is a functional option for configuring a Modulo topology.
type Option func(*Modulo)

// WithLogger sets the logger for the topology.
func WithLogger(lgr logger.Logger) Option {
	return func(m *Modulo) {
		m.lgr = lgr
	}
}
