package main

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/athena-dhcpd/athena-dhcpc/internal/config"
	"github.com/athena-dhcpd/athena-dhcpc/internal/events"
	"github.com/athena-dhcpd/athena-dhcpc/internal/journal"
)

func TestResolveMACConfigured(t *testing.T) {
	mac, err := resolveMAC("00:08:DC:11:11:11", "")
	if err != nil {
		t.Fatalf("resolveMAC error: %v", err)
	}
	if mac.String() != "00:08:dc:11:11:11" {
		t.Errorf("mac = %s", mac)
	}

	if _, err := resolveMAC("", ""); err == nil {
		t.Error("expected error with neither mac nor interface")
	}
	if _, err := resolveMAC("00:08:dc:11:11:11:11:11", ""); err == nil {
		t.Error("expected error for 8-byte hardware address")
	}
}

func TestNewDispatcherFromConfig(t *testing.T) {
	cfg, err := config.Parse(`
[hooks]
  [[hooks.script]]
  name = "apply"
  command = "true"
  timeout = "3s"

  [[hooks.webhook]]
  name = "notify"
  url = "http://127.0.0.1:1/hook"
`)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := events.NewBus(10, logger)
	d, err := newDispatcher(cfg, bus, logger)
	if err != nil {
		t.Fatalf("newDispatcher error: %v", err)
	}
	if d == nil {
		t.Fatal("nil dispatcher")
	}
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := writeTable(&buf, []journal.Record{
		{ID: 2, Timestamp: "not-a-time", Event: "lease.changed", IP: "192.168.1.77", OldIP: "192.168.1.50", LeaseSeconds: 3600},
		{ID: 1, Event: "conflict.detected", IP: "192.168.1.60", Method: "icmp_probe"},
	})
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "was 192.168.1.50") || !strings.Contains(lines[1], "1h0m0s") {
		t.Errorf("unexpected changed row %q", lines[1])
	}
	if !strings.Contains(lines[2], "icmp_probe") {
		t.Errorf("unexpected conflict row %q", lines[2])
	}
}

func TestLeaseText(t *testing.T) {
	tests := []struct {
		secs uint32
		want string
	}{
		{0, "-"},
		{0xFFFFFFFF, "infinite"},
		{86400, "24h0m0s"},
	}
	for _, tt := range tests {
		if got := leaseText(tt.secs); got != tt.want {
			t.Errorf("leaseText(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}
