// Package logger provides structured logging utilities.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Standard attribute keys for training runs.
const (
	KeyModelName  = "model.name"
	KeyStage      = "ml.phase"
	KeyLabel      = "label"
	KeyRunID      = "run.id"
	KeySamples    = "data.samples"
	KeyFeatures   = "data.features"
	KeyTargets    = "data.targets"
	KeyDurationMs = "perf.duration_ms"
)

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the specified level and format.
func New(level, format string) *Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter creates a logger that writes to w.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithStage returns a logger tagged with a pipeline stage.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{
		Logger: l.With(KeyStage, stage),
	}
}

// WithLabel returns a logger tagged with a label column.
func (l *Logger) WithLabel(label string) *Logger {
	return &Logger{
		Logger: l.With(KeyLabel, label),
	}
}

// WithRun returns a logger tagged with a training run id.
func (l *Logger) WithRun(runID string) *Logger {
	return &Logger{
		Logger: l.With(KeyRunID, runID),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, "error", "text")
}
