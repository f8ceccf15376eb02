package cachego

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with cachego-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithKey adds the cache key field to the logger.
func (l *Logger) WithKey(key string) *Logger {
	return &Logger{
		Logger: l.Logger.With("key", key),
	}
}

// LogGet logs the outcome of one get-or-build cycle.
func (l *Logger) LogGet(ctx context.Context, key string, hit, wasBuilt, ok bool) {
	l.DebugContext(ctx, "get completed",
		"key", key,
		"hit", hit,
		"built", wasBuilt,
		"ok", ok,
	)
}

// LogPut logs a put operation.
func (l *Logger) LogPut(ctx context.Context, key string, size int, err error) {
	if err != nil {
		l.WarnContext(ctx, "put failed",
			"key", key,
			"size", size,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "put completed",
			"key", key,
			"size", size,
		)
	}
}

// LogBuildFailure logs a producer that reported failure or produced no
// output.
func (l *Logger) LogBuildFailure(ctx context.Context, key string, err error) {
	if err != nil {
		l.WarnContext(ctx, "build failed",
			"key", key,
			"error", err,
		)
	} else {
		l.WarnContext(ctx, "build produced no output",
			"key", key,
		)
	}
}

// LogWriteBackFailure logs a failed store-back of a built result. The get
// itself still succeeds.
func (l *Logger) LogWriteBackFailure(ctx context.Context, key string, err error) {
	l.WarnContext(ctx, "write-back failed",
		"key", key,
		"error", err,
	)
}

// LogVerifyMismatch reports a deterministic producer whose fresh build does
// not match the cached bytes. This is a correctness bug in the producer or a
// backend tier and is logged loudly; the cached value is still returned.
func (l *Logger) LogVerifyMismatch(ctx context.Context, key string, cachedSize, rebuiltSize int) {
	l.ErrorContext(ctx, "determinism verification mismatch",
		"key", key,
		"cached_size", cachedSize,
		"rebuilt_size", rebuiltSize,
	)
}

// LogVerifyRebuildFailure reports a verification rebuild that failed
// outright.
func (l *Logger) LogVerifyRebuildFailure(ctx context.Context, key string, err error) {
	l.ErrorContext(ctx, "determinism verification rebuild failed",
		"key", key,
		"error", err,
	)
}

// LogDroppedHandles reports handles never collected before Close.
func (l *Logger) LogDroppedHandles(count int) {
	l.Warn("cache closed with uncollected handles",
		"count", count,
	)
}
