package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/dust-indexer/pkg/logger/slogx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initBuffer(t *testing.T, cfg Config) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, InitWithWriter(cfg, buf))
	t.Cleanup(func() { _ = Init(Config{}) })
	return buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &out), buf.String())
	return out
}

func TestJSONOutput(t *testing.T) {
	buf := initBuffer(t, Config{Output: "json"})

	ctx := WithContext(context.Background(), slogx.String("package", "scanner"))
	InfoContext(ctx, "Batch done", slogx.Duration("elapsed", 1500*time.Millisecond), slogx.Error(nil))

	line := decodeLine(t, buf)
	assert.Equal(t, "INFO", line[LevelKey])
	assert.Equal(t, "Batch done", line[MessageKey])
	assert.Equal(t, "scanner", line["package"])
	assert.EqualValues(t, 1500, line["elapsed"])
	assert.NotContains(t, line, ErrorKey)
	assert.NotContains(t, line, SourceKey)
}

func TestLevels(t *testing.T) {
	testCases := []struct {
		level    slog.Level
		expected string
	}{
		{slog.LevelWarn, "WARN"},
		{LevelCritical, "CRITICAL"},
		{LevelCritical + 1, "CRITICAL+1"},
		{LevelPanic, "PANIC"},
		{LevelFatal, "FATAL"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			buf := initBuffer(t, Config{Output: "json"})
			LogAttrs(context.Background(), tc.level, "message")
			assert.Equal(t, tc.expected, decodeLine(t, buf)[LevelKey])
		})
	}
}

func TestDebugLevel(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		buf := initBuffer(t, Config{Output: "json"})
		Debug("hidden")
		assert.Empty(t, buf.String())
	})
	t.Run("enabled with stack trace", func(t *testing.T) {
		buf := initBuffer(t, Config{Output: "json", Debug: true})
		Error("failed", slogx.Error(errors.New("boom")))

		line := decodeLine(t, buf)
		assert.Equal(t, "boom", line[ErrorKey])
		assert.Contains(t, line[ErrorVerboseKey], "boom")
		frames, ok := line[ErrorStackTraceKey].([]any)
		require.True(t, ok)
		require.NotEmpty(t, frames)
		assert.Contains(t, line, SourceKey)
	})
}

func TestGCPOutput(t *testing.T) {
	buf := initBuffer(t, Config{Output: "GCP"})
	Warn("careful")

	line := decodeLine(t, buf)
	assert.Equal(t, "WARNING", line["severity"])
	assert.Equal(t, "careful", line["message"])
	assert.Contains(t, line, "logging.googleapis.com/sourceLocation")
	assert.NotContains(t, line, LevelKey)
}

func TestTextOutput(t *testing.T) {
	buf := initBuffer(t, Config{})
	Info("hello", slogx.Int("n", 3))
	assert.True(t, strings.Contains(buf.String(), "msg=hello"), buf.String())
	assert.True(t, strings.Contains(buf.String(), "n=3"), buf.String())
}

func TestGCPSeverity(t *testing.T) {
	assert.Equal(t, "DEBUG", gcpSeverity(slog.LevelDebug))
	assert.Equal(t, "INFO", gcpSeverity(slog.LevelInfo))
	assert.Equal(t, "ERROR", gcpSeverity(slog.LevelError))
	assert.Equal(t, "CRITICAL", gcpSeverity(LevelCritical))
	assert.Equal(t, "ALERT", gcpSeverity(LevelPanic))
	assert.Equal(t, "EMERGENCY", gcpSeverity(LevelFatal))
}
