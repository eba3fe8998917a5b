package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output so log collectors can index
// the key-value pairs services attach.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
