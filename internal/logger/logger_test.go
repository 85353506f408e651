package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "info")

	if l == nil {
		t.Fatal("expected non-nil logger")
	}

	l.Info("test message", slog.String("key", "value"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON log output, got error: %v\nraw output: %s", err, buf.String())
	}

	if entry["msg"] != "test message" {
		t.Errorf("msg = %q, want %q", entry["msg"], "test message")
	}
	if entry["key"] != "value" {
		t.Errorf("key = %q, want %q", entry["key"], "value")
	}
}

func TestSetup_RedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "info")

	l.Info("session stored",
		slog.String("access_token", "eyJhbGciOi"),
		slog.String("Refresh_Token", "r-123"),
		slog.Group("request", slog.String("authorization", "Bearer abc")),
		slog.String("user_id", "user-1"),
	)

	if bytes.Contains(buf.Bytes(), []byte("eyJhbGciOi")) || bytes.Contains(buf.Bytes(), []byte("r-123")) || bytes.Contains(buf.Bytes(), []byte("Bearer abc")) {
		t.Fatalf("secret leaked into log output: %s", buf.String())
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry["access_token"] != redacted {
		t.Errorf("access_token = %v, want %q", entry["access_token"], redacted)
	}
	if entry["user_id"] != "user-1" {
		t.Errorf("user_id = %v, want user-1", entry["user_id"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
}

func TestSetup_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "warn")

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output for info at warn level, got %s", buf.String())
	}
	l.Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"shown"`)) {
		t.Errorf("expected warn entry, got %s", buf.String())
	}
}

func TestSetup_DebugLevelKeepsDebug(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "debug")

	l.Debug("visible", slog.String("email", "ana@ucaldas.edu.co"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}
	if entry["email"] != "ana@ucaldas.edu.co" {
		t.Errorf("email = %q, want %q", entry["email"], "ana@ucaldas.edu.co")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
		{" Error ", slog.LevelError},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupDefault(&buf, "info")

	slog.Default().Info("global test", slog.String("test_key", "test_val"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v\nraw: %s", err, buf.String())
	}

	if entry["msg"] != "global test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "global test")
	}
	if entry["test_key"] != "test_val" {
		t.Errorf("test_key = %q, want %q", entry["test_key"], "test_val")
	}
}
