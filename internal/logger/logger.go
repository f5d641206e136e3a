// Package logger provides structured logging setup using slog.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New creates a structured JSON logger. Used by the worker, whose stdout is
// captured into the build log.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// NewTee creates a JSON logger that writes to stdout and a second sink. The
// worker uses it to accumulate the log it uploads at the end of a run.
func NewTee(extra io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, extra), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// NewConsole creates a colored console logger for the CLI.
func NewConsole(level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
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
