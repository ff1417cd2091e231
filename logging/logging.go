// Package logging wraps log/slog with the level/format conventions used
// across the rest of the simulator.
package logging

import (
	"log/slog"
	"os"
)

var Logger *slog.Logger

func Init(level slog.Level, format string) {
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Fatal logs msg at error level and terminates the process. It is reserved
// for invariant violations and unrecoverable configuration errors (see
// SPEC_FULL.md §A.3) — recoverable conditions such as solver failure must
// not call this.
func Fatal(msg string, args ...any) {
	if Logger == nil {
		Init(slog.LevelInfo, "text")
	}
	Logger.Error(msg, args...)
	os.Exit(1)
}
