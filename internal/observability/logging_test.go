package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bearer header", "auth failed for Bearer sk-abc123def456", "auth failed for [REDACTED]"},
		{"bare api key", "got key sk-aaaabbbbccccdddd", "got key [REDACTED]"},
		{"config echo", "parse error near api_key: supersecret", "parse error near [REDACTED]"},
		{"clean text", "config reloaded", "config reloaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Redact(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNewLoggerRedactsAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("request rejected", "header", "Bearer sk-verysecretkey1", "path", "/v1/models")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json record: %v", err)
	}
	if record["header"] != "[REDACTED]" {
		t.Errorf("expected redacted header, got %v", record["header"])
	}
	if record["path"] != "/v1/models" {
		t.Errorf("expected path untouched, got %v", record["path"])
	}
	if strings.Contains(buf.String(), "verysecretkey") {
		t.Error("secret leaked into log output")
	}
}

func TestNewLoggerRedactsErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Error("load failed", "error", errors.New("bad value for api_key: sk-hunter2hunter2"))

	if strings.Contains(buf.String(), "hunter2") {
		t.Errorf("secret leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Errorf("expected redaction marker: %s", buf.String())
	}
}

func TestNewLoggerRedactsWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("token", "Bearer abc.def.ghi")

	logger.Info("started")

	if strings.Contains(buf.String(), "abc.def.ghi") {
		t.Errorf("secret leaked via With: %s", buf.String())
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug suppressed, got %s", buf.String())
	}

	logger.Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("expected info record")
	}
}
