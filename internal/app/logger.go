package app

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the daemon logger. Production always emits JSON so log
// shippers get structured records regardless of LOG_FORMAT; elsewhere the
// format follows configuration, defaulting to text for local runs.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: LogLevel(cfg), AddSource: true}
	if cfg.IsProduction() || (cfg != nil && cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// LogLevel maps the configured level name to a slog level, defaulting to info.
func LogLevel(cfg *Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(cfg.LogLevel) {
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
