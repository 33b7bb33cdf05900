// Package logging tests for structured logging.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLevel verifies level name parsing.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

// TestNew_writesJSON verifies entries are JSON with message, level and context.
func TestNew_writesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)

	l.Info("sweep finished", map[string]interface{}{"processed": 3})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "sweep finished", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.EqualValues(t, 3, entry["processed"])
	assert.NotEmpty(t, entry["timestamp"])
}

// TestNew_minLevel verifies entries below the minimum level are dropped.
func TestNew_minLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("debug")
	l.Info("info")
	assert.Zero(t, buf.Len())

	l.Warn("warn")
	assert.Contains(t, buf.String(), `"warn"`)
}

// TestErrorWithCode verifies the error and code fields are attached.
func TestErrorWithCode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core)

	l.ErrorWithCode("operation dropped", "SYNC_AUTH_FAILED", errors.New("unauthorized"),
		map[string]interface{}{"operation_id": "op-1"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "operation dropped", entry.Message)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "SYNC_AUTH_FAILED", ctx["code"])
	assert.Equal(t, "unauthorized", ctx["error"])
	assert.Equal(t, "op-1", ctx["operation_id"])
}

// TestContextMerge verifies multiple context maps are merged, later keys winning.
func TestContextMerge(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithCore(core)

	l.Debug("merged",
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)

	ctx := logs.All()[0].ContextMap()
	assert.EqualValues(t, 1, ctx["a"])
	assert.EqualValues(t, 2, ctx["b"])
}

// TestGlobal verifies the package-level helpers use the installed logger.
func TestGlobal(t *testing.T) {
	prev := Get()
	t.Cleanup(func() { SetLogger(prev) })

	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(NewWithCore(core))

	Info("hello")
	Warn("careful")
	Error("boom", errors.New("x"))

	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "careful", logs.All()[1].Message)
}

// TestNewFromConfig_file verifies rotation-backed file output.
func TestNewFromConfig_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sync.log")
	l := NewFromConfig(Config{
		Level:      "debug",
		Format:     "console",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	assert.Equal(t, LevelDebug, l.Level())

	l.Debug("to file")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to file"))
}
