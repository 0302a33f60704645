package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup("warn", "json", &buf)

	logger.Info("hidden")
	logger.Warn("lease bound", "ip", "192.168.1.50")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line at warn level, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "lease bound" || rec["ip"] != "192.168.1.50" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestSetupText(t *testing.T) {
	var buf bytes.Buffer
	Setup("debug", "text", &buf).Debug("renewing lease", "xid", "0x12345679")

	out := buf.String()
	if !strings.Contains(out, `msg="renewing lease"`) || !strings.Contains(out, "xid=0x12345679") {
		t.Errorf("unexpected text output %q", out)
	}
}
