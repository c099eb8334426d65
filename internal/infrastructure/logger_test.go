package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qfactor/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "DEBUG", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "", want: slog.LevelInfo},
		{input: "verbose", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

// decodeLine unmarshals a single JSON log line.
func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestLoggerInjectsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, "json", nil)

	ctx := WithTraceID(context.Background(), "run-1234")
	logger.InfoContext(ctx, "factors computed", slog.Int("rows", 42))

	record := decodeLine(t, &buf)
	assert.Equal(t, "run-1234", record["trace_id"])
	assert.Equal(t, "factors computed", record["msg"])
	assert.Equal(t, float64(42), record["rows"])
}

func TestLoggerWithoutTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, "json", nil)

	logger.InfoContext(context.Background(), "no run id here")

	record := decodeLine(t, &buf)
	assert.NotContains(t, record, "trace_id")
}

// With must keep the trace handler in the chain so derived loggers still
// correlate.
func TestLoggerWithAttrsKeepsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, "json", nil).With(slog.String("component", "manager"))

	ctx := WithTraceID(context.Background(), "run-5678")
	logger.InfoContext(ctx, "batch done")

	record := decodeLine(t, &buf)
	assert.Equal(t, "manager", record["component"])
	assert.Equal(t, "run-5678", record["trace_id"])
}

func TestLoggerWithGroupKeepsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, "json", nil).WithGroup("store")

	ctx := WithTraceID(context.Background(), "run-9")
	logger.InfoContext(ctx, "rows written", slog.Int("count", 3))

	record := decodeLine(t, &buf)
	group, ok := record["store"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), group["count"])
	assert.Equal(t, "run-9", group["trace_id"])
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerTo(&buf, "text", nil)

	logger.Info("plain line", slog.String("factor", "rsi_14"))

	out := buf.String()
	assert.Contains(t, out, "msg=\"plain line\"")
	assert.Contains(t, out, "factor=rsi_14")
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{Level: parseLogLevel("warn")}
	logger := newLoggerTo(&buf, "json", opts)

	logger.Info("too quiet")
	assert.Zero(t, buf.Len())

	logger.Warn("loud enough")
	assert.Contains(t, buf.String(), "loud enough")
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qfactor.log")
	logger := NewLogger(config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
	})

	logger.Info("persisted line")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "persisted line")
}

func TestNewLoggerDefaultsToStdout(t *testing.T) {
	logger := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"})
	require.NotNil(t, logger)
}

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	ctx = WithTraceID(ctx, "abc")
	assert.Equal(t, "abc", GetTraceID(ctx))
}

func TestNewRunID(t *testing.T) {
	first := NewRunID()
	second := NewRunID()

	assert.Len(t, first, 36)
	assert.NotEqual(t, first, second)
}

func TestContextWithRunID(t *testing.T) {
	ctx := ContextWithRunID(context.Background())
	assert.NotEmpty(t, GetTraceID(ctx))
}

func TestEnsureTraceID(t *testing.T) {
	t.Run("installs when absent", func(t *testing.T) {
		ctx := EnsureTraceID(context.Background())
		assert.NotEmpty(t, GetTraceID(ctx))
	})

	t.Run("keeps existing", func(t *testing.T) {
		ctx := WithTraceID(context.Background(), "keep-me")
		ctx = EnsureTraceID(ctx)
		assert.Equal(t, "keep-me", GetTraceID(ctx))
	})
}
