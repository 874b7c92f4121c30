// Package logging provides loggers for the rest of the codebase.
package logging

import "context"

// Logger is an interface used by imxup to output logs.
type Logger interface {
	Debugf(msg string, args ...interface{})
	Debugw(msg string, keyValuePairs ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
}

// LoggerForModuleFunc returns a logger for a given module.
type LoggerForModuleFunc func(module string) Logger

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger returns a derived context with the associated logger factory.
func WithLogger(ctx context.Context, l LoggerForModuleFunc) context.Context {
	if l == nil {
		l = getNullLogger
	}

	return context.WithValue(ctx, loggerKey, l)
}

// Module returns a function that returns a logger for a given module, either
// from the provided context or the process-wide default.
func Module(module string) func(ctx context.Context) Logger {
	return func(ctx context.Context) Logger {
		if f, ok := ctx.Value(loggerKey).(LoggerForModuleFunc); ok {
			return f(module)
		}

		return defaultLoggerForModule(module)
	}
}
