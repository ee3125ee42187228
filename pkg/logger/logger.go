package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var (
	// Default is the default logger instance
	Default *slog.Logger
)

func init() {
	Default = NewFormat("text", "info", os.Stderr)
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// durationAttr renders durations as "1.5s" instead of raw nanoseconds, so
// benchmark timings read the same in JSON and text output.
func durationAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().Round(time.Millisecond).String())
	}
	return a
}

// NewFormat builds a logger writing to output. format is "json" for the
// tuning service or anything else for text.
func NewFormat(format, level string, output io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: durationAttr,
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}

// New creates a JSON logger
func New(level string, output io.Writer) *slog.Logger {
	return NewFormat("json", level, output)
}

// SetDefault sets the default logger
func SetDefault(logger *slog.Logger) {
	Default = logger
	slog.SetDefault(logger)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Default.Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Default.Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Default.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Default.Error(msg, args...)
}

// ForRun returns the default logger tagged with a run ID and search method
func ForRun(runID, method string) *slog.Logger {
	return Default.With("run_id", runID, "method", method)
}

// ForTrial tags one repeat of an experiment with its seed
func ForTrial(runID string, seed int64) *slog.Logger {
	return Default.With("run_id", runID, "seed", seed)
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
