// Package logger defines the logging contract shared by every simulation
// component.
package logger

// Logger exposes leveled printf-style logging plus a structured debug call.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs msg with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Scoped is implemented by loggers able to derive a child logger carrying an
// extra key/value pair on every entry.
type Scoped interface {
	With(key, value string) Logger
}

// With returns l scoped with key=value when supported, l otherwise.
func With(l Logger, key, value string) Logger {
	if s, ok := l.(Scoped); ok {
		return s.With(key, value)
	}
	return l
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Debugf(string, ...any)         {}
func (Nop) Debugw(string, map[string]any) {}
func (Nop) Infof(string, ...any)          {}
func (Nop) Warnf(string, ...any)          {}
func (Nop) Errorf(string, ...any)         {}
