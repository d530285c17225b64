package zlog

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with zlog-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithLog adds a log name field to the logger.
func (l *Logger) WithLog(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("log", name),
	}
}

// WithStream adds a stream id field to the logger.
func (l *Logger) WithStream(id uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("stream", id),
	}
}

// WithEpoch adds an epoch field to the logger.
func (l *Logger) WithEpoch(epoch uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("epoch", epoch),
	}
}

// LogAppend logs an append operation.
func (l *Logger) LogAppend(ctx context.Context, position uint64, streams []uint64, retries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "append failed",
			"streams", streams,
			"retries", retries,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "append completed",
			"position", position,
			"streams", streams,
			"retries", retries,
		)
	}
}

// LogRefresh logs a projection refresh.
func (l *Logger) LogRefresh(ctx context.Context, oldEpoch, newEpoch uint64, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "projection refresh failed",
			"epoch", oldEpoch,
			"error", err,
		)
	case newEpoch != oldEpoch:
		l.InfoContext(ctx, "projection refreshed",
			"old_epoch", oldEpoch,
			"new_epoch", newEpoch,
		)
	default:
		l.DebugContext(ctx, "projection unchanged",
			"epoch", oldEpoch,
		)
	}
}

// LogFill logs a fill or trim of a position.
func (l *Logger) LogFill(ctx context.Context, op string, position uint64, err error) {
	if err != nil {
		l.DebugContext(ctx, op+" rejected",
			"position", position,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, op+" completed",
			"position", position,
		)
	}
}

// LogSync logs a stream recovery scan.
func (l *Logger) LogSync(ctx context.Context, streamID uint64, scanned, discovered int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "stream sync failed",
			"stream", streamID,
			"scanned", scanned,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "stream sync completed",
			"stream", streamID,
			"scanned", scanned,
			"discovered", discovered,
		)
	}
}

// LogReconfigure logs a reconfiguration.
func (l *Logger) LogReconfigure(ctx context.Context, epoch, start uint64, width uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reconfiguration failed",
			"epoch", epoch,
			"width", width,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "reconfiguration committed",
			"epoch", epoch,
			"start", start,
			"width", width,
		)
	}
}
