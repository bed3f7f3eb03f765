package translate

import (
	"context"
	"maps"
)

// Logger defines the leveled logging contract expected by the engine.
// It mirrors the interface exposed by github.com/goliatone/go-logger so
// host applications can plug that package in without additional
// adapters.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// LoggerProvider exposes named loggers. Implementations can return the
// same instance for every name or scope loggers per module.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// FieldsLogger is an optional extension for attaching persistent
// structured fields to a logger.
type FieldsLogger interface {
	WithFields(fields map[string]any) Logger
}

// WithFields attaches structured fields to a logger when the
// implementation supports the optional FieldsLogger extension.
func WithFields(logger Logger, fields map[string]any) Logger {
	if logger == nil || len(fields) == 0 {
		return logger
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		copied := make(map[string]any, len(fields))
		maps.Copy(copied, fields)
		return fieldsLogger.WithFields(copied)
	}
	return logger
}

// NoOp returns a logger that discards every entry.
func NoOp() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Trace(string, ...any)               {}
func (noopLogger) Debug(string, ...any)               {}
func (noopLogger) Info(string, ...any)                {}
func (noopLogger) Warn(string, ...any)                {}
func (noopLogger) Error(string, ...any)               {}
func (noopLogger) Fatal(string, ...any)               {}
func (noopLogger) WithContext(context.Context) Logger { return noopLogger{} }
func (noopLogger) WithFields(map[string]any) Logger   { return noopLogger{} }
