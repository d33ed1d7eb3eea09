package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/reminder-api/internal/config"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWithWriter(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	tests := []struct {
		name     string
		level    string
		logDebug bool
		logInfo  bool
		logWarn  bool
		logError bool
	}{
		{name: "debug", level: "debug", logDebug: true, logInfo: true, logWarn: true, logError: true},
		{name: "info", level: "info", logInfo: true, logWarn: true, logError: true},
		{name: "warn", level: "WARN", logWarn: true, logError: true},
		{name: "error", level: "error", logError: true},
		{name: "unknown falls back to info", level: "loud", logInfo: true, logWarn: true, logError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := logger.SetupWithWriter(config.ServerConfig{LogLevel: tt.level}, &buf)
			require.NotNil(t, l)

			ctx := context.Background()
			assert.Equal(t, tt.logDebug, l.Enabled(ctx, slog.LevelDebug))
			assert.Equal(t, tt.logInfo, l.Enabled(ctx, slog.LevelInfo))
			assert.Equal(t, tt.logWarn, l.Enabled(ctx, slog.LevelWarn))
			assert.Equal(t, tt.logError, l.Enabled(ctx, slog.LevelError))
		})
	}
}

func TestSetupWritesJSON(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	var buf bytes.Buffer
	l := logger.SetupWithWriter(config.ServerConfig{LogLevel: "info"}, &buf)
	l.Info("task claimed", "task_id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "task claimed", entry["msg"])
	assert.Equal(t, "abc", entry["task_id"])

	slog.Info("via default")
	assert.Contains(t, buf.String(), "via default", "Setup should install the default logger")
}

func TestContextLogger(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	scoped := slog.New(slog.NewTextHandler(io.Discard, nil)).With("trace_id", "t-1")

	t.Run("empty context uses fallback", func(t *testing.T) {
		assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	})

	t.Run("stored logger wins", func(t *testing.T) {
		ctx := logger.WithContext(context.Background(), scoped)
		assert.Same(t, scoped, logger.FromContextOrDefault(ctx, fallback))
		assert.Same(t, scoped, logger.FromContext(ctx))
	})

	t.Run("nil fallback uses default", func(t *testing.T) {
		assert.Same(t, slog.Default(), logger.FromContextOrDefault(context.Background(), nil))
	})
}
