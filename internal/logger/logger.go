// Package logger defines the structured logging contract used across the
// overlay. Components depend on Logger only; the zap subpackage provides
// the production implementation and NopLogger is the default.
package logger

import "MovieDHT/internal/domain"

// Field is a single structured key/value pair.
type Field struct {
	Key string
	Val any
}

// Logger is the structured logger used by every component.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// Named returns a child logger whose name is suffixed with name.
	Named(name string) Logger

	// WithNode returns a child logger that tags every entry with the node.
	WithNode(n domain.Node) Logger
}

// F builds a field.
func F(key string, val any) Field {
	return Field{Key: key, Val: val}
}

// FErr builds the conventional "err" field.
func FErr(err error) Field {
	return Field{Key: "err", Val: err}
}

// FNode renders a node as a compact map field.
func FNode(key string, n domain.Node) Field {
	return Field{Key: key, Val: map[string]any{
		"id":   n.ID.ToHexString(),
		"name": n.Name,
	}}
}

// NopLogger discards everything.
type NopLogger struct{}

func (l *NopLogger) Debug(string, ...Field) {}
func (l *NopLogger) Info(string, ...Field) {}
func (l *NopLogger) Warn(string, ...Field) {}
func (l *NopLogger) Error(string, ...Field) {}
func (l *NopLogger) Named(string) Logger { return l }
func (l *NopLogger) WithNode(domain.Node) Logger { return l }
