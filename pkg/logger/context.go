package logger

import "context"

type ctxKey struct{}

// LoggerCtxKey is the context key under which loggers are stored.
var LoggerCtxKey = ctxKey{}

// ContextWithLogger returns a child context carrying log.
func ContextWithLogger(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, LoggerCtxKey, log)
}

// FromContext returns the logger stored on ctx, or the process default when
// the context carries none. It never returns nil.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if log, ok := ctx.Value(LoggerCtxKey).(Logger); ok && log != nil {
			return log
		}
	}
	return defaultLogger
}
