package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "nil config uses defaults", config: nil},
		{
			name:   "explicit debug config",
			config: &Config{Level: LevelDebug, Output: &bytes.Buffer{}},
		},
		{
			name:   "explicit info config",
			config: &Config{Level: LevelInfo, Output: &bytes.Buffer{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected Debug/Info to be filtered at LevelWarn, got: %s", buf.String())
	}

	logger.Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("expected warning message, got: %s", buf.String())
	}
}

func TestLoggerKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("finger detected", "location", 42, "score", 187)

	output := buf.String()
	if !strings.Contains(output, "location=42") {
		t.Errorf("expected location=42 in output, got: %s", output)
	}
	if !strings.Contains(output, "score=187") {
		t.Errorf("expected score=187 in output, got: %s", output)
	}
}

func TestLoggerPrintfStyle(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debugf("retrying opcode %#x, attempt %d", 0x01, 2)
	if !strings.Contains(buf.String(), "retrying opcode 0x1, attempt 2") {
		t.Errorf("expected formatted message, got: %s", buf.String())
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	t.Cleanup(func() { SetDefault(NewLogger(nil)) })

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("Expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("Expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("Expected error message, got: %s", buf.String())
	}
}

func TestDefaultReturnsSameInstance(t *testing.T) {
	SetDefault(nil)
	first := Default()
	second := Default()
	if first != second {
		t.Error("Default() returned different instances across calls")
	}
}
