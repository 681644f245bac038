package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := []struct {
		in      string
		enabled slog.Level
		muted   slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"  WARNING ", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
		{"", slog.LevelInfo, slog.LevelDebug},
		{"nonsense", slog.LevelInfo, slog.LevelDebug},
	}
	for _, tc := range cases {
		logger := NewLogger(tc.in)
		if !logger.Enabled(context.Background(), tc.enabled) {
			t.Errorf("level %q: expected %v enabled", tc.in, tc.enabled)
		}
		if logger.Enabled(context.Background(), tc.muted) {
			t.Errorf("level %q: expected %v muted", tc.in, tc.muted)
		}
	}
}
