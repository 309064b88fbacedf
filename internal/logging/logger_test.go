package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json format", config: &Config{Level: LevelInfo, Format: "json", Output: &bytes.Buffer{}, Sync: true}},
		{name: "text format", config: &Config{Level: LevelDebug, Format: "text", Output: &bytes.Buffer{}, Sync: true}},
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

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true}

	logger := NewLogger(config)

	queueLogger := logger.WithQueue(1)
	queueLogger.Info("queue message")

	output := buf.String()
	if !strings.Contains(output, "queue_id=1") {
		t.Errorf("Expected queue_id=1 in output, got: %s", output)
	}

	buf.Reset()
	classLogger := queueLogger.WithClass("BE")
	classLogger.Info("class message")

	output = buf.String()
	if !strings.Contains(output, "queue_id=1") {
		t.Errorf("Expected queue_id=1 in class logger output, got: %s", output)
	}
	if !strings.Contains(output, "class=BE") {
		t.Errorf("Expected class=BE in output, got: %s", output)
	}
}

func TestLoggerWithReason(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true}

	logger := NewLogger(config)
	reasonLogger := logger.WithReason("BUDGET_EXHAUSTED")
	reasonLogger.Debug("expiring queue")

	output := buf.String()
	if !strings.Contains(output, "reason=BUDGET_EXHAUSTED") {
		t.Errorf("Expected reason=BUDGET_EXHAUSTED in output, got: %s", output)
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true}

	logger := NewLogger(config)
	testErr := errors.New("test error")
	errorLogger := logger.WithError(testErr)
	errorLogger.Error("operation failed")

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Errorf("Expected 'test error' in output, got: %s", output)
	}
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{Level: LevelDebug, Format: "text", Output: &buf, Sync: true, NoColor: true}

	SetDefault(NewLogger(config))

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
	output = buf.String()
	if !strings.Contains(output, "info message") {
		t.Errorf("Expected info message, got: %s", output)
	}

	buf.Reset()
	Warn("warning message")
	output = buf.String()
	if !strings.Contains(output, "warning message") {
		t.Errorf("Expected warning message, got: %s", output)
	}

	buf.Reset()
	Error("error message")
	output = buf.String()
	if !strings.Contains(output, "error message") {
		t.Errorf("Expected error message, got: %s", output)
	}
}
