package zap

import (
	"MovieDHT/internal/domain"
	"MovieDHT/internal/logger"

	"go.uber.org/zap"
)

// ZapAdapter implements logger.Logger on top of *zap.Logger.
type ZapAdapter struct {
	l *zap.Logger
}

// NewZapAdapter wraps an existing zap logger.
func NewZapAdapter(l *zap.Logger) logger.Logger {
	return &ZapAdapter{l: l}
}

func toZapFields(fields []logger.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Val.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Val))
	}
	return out
}

func (a *ZapAdapter) Debug(msg string, fields ...logger.Field) {
	a.l.Debug(msg, toZapFields(fields)...)
}

func (a *ZapAdapter) Info(msg string, fields ...logger.Field) {
	a.l.Info(msg, toZapFields(fields)...)
}

func (a *ZapAdapter) Warn(msg string, fields ...logger.Field) {
	a.l.Warn(msg, toZapFields(fields)...)
}

func (a *ZapAdapter) Error(msg string, fields ...logger.Field) {
	a.l.Error(msg, toZapFields(fields)...)
}

func (a *ZapAdapter) Named(name string) logger.Logger {
	return &ZapAdapter{l: a.l.Named(name)}
}

func (a *ZapAdapter) WithNode(n domain.Node) logger.Logger {
	return &ZapAdapter{l: a.l.With(
		zap.String("node_id", n.ID.ToHexString()),
		zap.String("node_name", n.Name),
	)}
}
