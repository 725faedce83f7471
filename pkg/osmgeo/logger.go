package osmgeo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with conversion-specific helpers that keep field
// names consistent.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler.
// If handler is nil, uses a text handler to stderr at info level.
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

// NewJSONLogger creates a Logger that writes JSON to stderr.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that writes human-readable text to stderr.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRun tags every record with a run id.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", id),
	}
}

// LogGroupCommitted logs one group commit.
func (l *Logger) LogGroupCommitted(ctx context.Context, ref GroupRef, committed, dropped int) {
	l.DebugContext(ctx, "group committed",
		"kind", ref.Kind,
		"block", ref.Block,
		"group", ref.Group,
		"entities", committed,
		"dropped", dropped,
	)
}

// LogEntityDropped logs an entity that could not be built.
func (l *Logger) LogEntityDropped(ctx context.Context, kind Kind, id int64, err error) {
	l.WarnContext(ctx, "entity dropped",
		"kind", kind,
		"id", id,
		"error", err,
	)
}

// LogFallback logs a group retried one entity at a time.
func (l *Logger) LogFallback(ctx context.Context, ref GroupRef, err error) {
	l.WarnContext(ctx, "parallel build failed, retrying group sequentially",
		"kind", ref.Kind,
		"block", ref.Block,
		"group", ref.Group,
		"error", err,
	)
}

// LogCorruptGroup logs a group skipped because its own block cannot be decoded.
func (l *Logger) LogCorruptGroup(ctx context.Context, ref GroupRef, err error) {
	l.ErrorContext(ctx, "skipping group in undecodable block",
		"kind", ref.Kind,
		"block", ref.Block,
		"group", ref.Group,
		"error", err,
	)
}

// LogEviction logs a memory-pressure eviction.
func (l *Logger) LogEviction(ctx context.Context, evicted int, pressure float64) {
	l.InfoContext(ctx, "memory pressure, evicted cached blocks",
		"evicted", evicted,
		"pressure", pressure,
	)
}
