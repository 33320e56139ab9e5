package logger

import corelogger "github.com/kilianp07/energysched/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. APP_ENV=dev selects the
// console writer.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// ForDevice returns a component logger that also tags every line with the
// device name.
func ForDevice(component, device string) Logger {
	l := NewZerologLogger(component)
	if z, ok := l.(*ZerologLogger); ok {
		return z.With("device", device)
	}
	return l
}
