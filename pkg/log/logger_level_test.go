package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  LogLevel
	}{
		{name: "debug lower", input: "debug", want: LevelDebug},
		{name: "info upper", input: "INFO", want: LevelInfo},
		{name: "warn mixed", input: "WaRn", want: LevelWarn},
		{name: "warning alias", input: "warning", want: LevelWarn},
		{name: "error", input: "error", want: LevelError},
		{name: "fatal", input: "fatal", want: LevelFatal},
		{name: "trim spaces", input: "  debug  ", want: LevelDebug},
		{name: "unknown fallback", input: "verbose", want: LevelInfo},
		{name: "empty fallback", input: "", want: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Fatalf("ParseLevel(%q)=%v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var console bytes.Buffer
	logger := NewLoggerWithWriters(LevelWarn, &console, nil)

	logger.Info("hidden %d", 1)
	logger.Warn("shown %d", 2)

	out := console.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "level=WARN")
}

func TestLogger_FanoutWritesJSONFile(t *testing.T) {
	var console, file bytes.Buffer
	logger := NewLoggerWithWriters(LevelDebug, &console, &file)

	logger.Error("batch %d failed", 3)

	assert.Contains(t, console.String(), "batch 3 failed")

	line := strings.TrimSpace(file.String())
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "batch 3 failed", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Contains(t, rec["source"], "logger_level_test.go")
}

func TestLogger_SetLevel(t *testing.T) {
	var console bytes.Buffer
	logger := NewLoggerWithWriters(LevelError, &console, nil)

	logger.Debug("before")
	logger.SetLevel(LevelDebug)
	logger.Debug("after")

	assert.NotContains(t, console.String(), "before")
	assert.Contains(t, console.String(), "after")
}
