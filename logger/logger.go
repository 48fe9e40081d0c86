// Package logger defines the minimal structured logging interface used by
// the checker, with phuslu-style and slog backends.
package logger

// Logger accepts alternating key/value pairs as variadic arguments. The
// interface is deliberately small so it is trivial to mock in tests.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}
