// Package logger is the engine's logging seam. Every collaborator that can
// fail quietly (polling loops, background renewals, the store) logs through
// this interface; the host decides where the lines go.
package logger

// Logger carries structured fields as a plain map so host applications can
// bridge to whatever logging stack they run. Field keys follow the engine's
// conventions: "method" for the payment chain, "txRef" for canonical
// transaction references, "attempt" for purchase attempt ids.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// NoopLogger drops everything. It is the default everywhere a Logger is
// optional.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

// OrNoop returns l, or the noop logger when l is nil. Constructors use it so
// callers never have to pass an explicit logger.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}
