package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogLevelMapping(t *testing.T) {
	require.Equal(t, slog.LevelInfo, LogLevel(nil))
	require.Equal(t, slog.LevelInfo, LogLevel(&Config{}))
	require.Equal(t, slog.LevelInfo, LogLevel(&Config{LogLevel: "nonsense"}))
	require.Equal(t, slog.LevelDebug, LogLevel(&Config{LogLevel: "debug"}))
	require.Equal(t, slog.LevelWarn, LogLevel(&Config{LogLevel: "WARN"}))
	require.Equal(t, slog.LevelWarn, LogLevel(&Config{LogLevel: "warning"}))
	require.Equal(t, slog.LevelError, LogLevel(&Config{LogLevel: "error"}))
}

func TestNewLoggerHonorsLevel(t *testing.T) {
	ctx := context.Background()

	logger := NewLogger(&Config{LogLevel: "warn"})
	require.False(t, logger.Enabled(ctx, slog.LevelInfo))
	require.True(t, logger.Enabled(ctx, slog.LevelWarn))

	logger = NewLogger(&Config{LogLevel: "debug"})
	require.True(t, logger.Enabled(ctx, slog.LevelDebug))
}
