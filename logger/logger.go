// Package logger builds the process-wide slog handlers.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New returns the root logger. Verbose enables debug records.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.StampMilli,
	}))
}

// NewTest returns a logger for tests: silent unless DEBUG is set.
func NewTest() *slog.Logger {
	if os.Getenv("DEBUG") != "" {
		return New(true)
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
