package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger from LOG_LEVEL.
// Production gets JSON lines; everything else gets text.
func NewLogger(c *Config) *slog.Logger {
	return newLogger(c, os.Stdout)
}

func newLogger(c *Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}

	var h slog.Handler
	if c.IsProduction() {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("env", c.GoEnv))
}

// ParseLevel maps a LOG_LEVEL string to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
