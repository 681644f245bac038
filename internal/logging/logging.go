// Package logging builds the process-wide slog.Logger. Text format on
// stdout; the level comes from configuration and unknown values fall
// back to info so a typo never silences the log.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// NewLogger returns a text logger writing to stdout at the given level.
func NewLogger(levelStr string) *slog.Logger {
	level, ok := levels[strings.ToLower(strings.TrimSpace(levelStr))]
	if !ok {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
