package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const fullConfig = `
[client]
interface = "eth0"
mac = "00:08:dc:11:11:11"
device_id = "WIZnet"
log_level = "debug"
log_format = "text"
poll_interval = "50ms"
retry_wait = "5s"
max_retries = 4
initial_xid = 305419896
journal_db = "/tmp/journal.db"
journal_max = 50
release_on_exit = false

[conflict_detection]
enabled = true
method = "send"
probe_timeout = "250ms"
probe_port = 6000
cache_ttl = "1m"

[metrics]
enabled = true
listen = "0.0.0.0:9200"

[hooks]
event_buffer_size = 200
script_concurrency = 2
script_timeout = "5s"

  [[hooks.script]]
  name = "apply"
  events = ["lease.*"]
  command = "/usr/local/bin/apply-lease"

  [[hooks.webhook]]
  name = "notify"
  events = ["conflict.detected"]
  url = "https://hooks.example.com/dhcp"
  template = "slack"
`

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Client.Interface != "eth0" {
		t.Errorf("Interface = %q, want %q", cfg.Client.Interface, "eth0")
	}
	if cfg.Client.MAC != "00:08:dc:11:11:11" {
		t.Errorf("MAC = %q", cfg.Client.MAC)
	}
	if cfg.Client.InitialXID != 0x12345678 {
		t.Errorf("InitialXID = %#x, want 0x12345678", cfg.Client.InitialXID)
	}
	if cfg.Client.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", cfg.Client.MaxRetries)
	}
	if cfg.PollInterval() != 50*time.Millisecond {
		t.Errorf("PollInterval = %s, want 50ms", cfg.PollInterval())
	}
	if cfg.RetryWait() != 5*time.Second {
		t.Errorf("RetryWait = %s, want 5s", cfg.RetryWait())
	}
	if cfg.ReleaseOnExit() {
		t.Error("ReleaseOnExit = true, want false")
	}
	if !cfg.ProbeEnabled() || cfg.ConflictDetection.Method != "send" {
		t.Errorf("conflict detection = %+v", cfg.ConflictDetection)
	}
	if cfg.ProbeTimeout() != 250*time.Millisecond {
		t.Errorf("ProbeTimeout = %s, want 250ms", cfg.ProbeTimeout())
	}
	if cfg.ProbeCacheTTL() != time.Minute {
		t.Errorf("ProbeCacheTTL = %s, want 1m", cfg.ProbeCacheTTL())
	}
	if len(cfg.Hooks.Scripts) != 1 || cfg.Hooks.Scripts[0].Command != "/usr/local/bin/apply-lease" {
		t.Errorf("Scripts = %+v", cfg.Hooks.Scripts)
	}
	if len(cfg.Hooks.Webhooks) != 1 {
		t.Fatalf("Webhooks = %d, want 1", len(cfg.Hooks.Webhooks))
	}
	wh := cfg.Hooks.Webhooks[0]
	if wh.Method != "POST" || wh.Retries != DefaultWebhookRetries || wh.RetryBackoff != DefaultWebhookRetryBackoff.String() {
		t.Errorf("webhook defaults not applied: %+v", wh)
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg, err := Parse("[client]\ninterface = \"eth1\"\n")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}

	if cfg.Client.DeviceID != DefaultDeviceID {
		t.Errorf("DeviceID = %q, want %q", cfg.Client.DeviceID, DefaultDeviceID)
	}
	if cfg.Client.LogLevel != DefaultLogLevel || cfg.Client.LogFormat != DefaultLogFormat {
		t.Errorf("log settings = %q/%q", cfg.Client.LogLevel, cfg.Client.LogFormat)
	}
	if cfg.Client.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", cfg.Client.MaxRetries, DefaultMaxRetries)
	}
	if cfg.RetryWait() != DefaultRetryWait {
		t.Errorf("RetryWait = %s, want %s", cfg.RetryWait(), DefaultRetryWait)
	}
	if !cfg.ReleaseOnExit() {
		t.Error("ReleaseOnExit should default to true")
	}
	if !cfg.ProbeEnabled() || cfg.ConflictDetection.Method != DefaultProbeMethod {
		t.Errorf("conflict detection defaults = %+v", cfg.ConflictDetection)
	}
	if cfg.ConflictDetection.ProbePort != DefaultProbePort {
		t.Errorf("ProbePort = %d", cfg.ConflictDetection.ProbePort)
	}
	if cfg.Metrics.Enabled || cfg.Metrics.Listen != DefaultMetricsListen {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
	if cfg.Hooks.EventBufferSize != DefaultEventBufferSize || cfg.Hooks.ScriptConcurrency != DefaultScriptConcurrency {
		t.Errorf("hooks = %+v", cfg.Hooks)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := validate(Default()); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path.toml")
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	_, err := Load(writeTestConfig(t, "this is not valid toml {{{{"))
	if err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse("[client]\nretry_wiat = \"5s\"\n")
	if err == nil || !strings.Contains(err.Error(), "client.retry_wiat") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{"bad mac", "[client]\nmac = \"not-a-mac\"\n", "client.mac"},
		{"bad log level", "[client]\nlog_level = \"loud\"\n", "client.log_level"},
		{"bad duration", "[client]\nretry_wait = \"soon\"\n", "client.retry_wait"},
		{"retry wait too short", "[client]\nretry_wait = \"200ms\"\n", "client.retry_wait"},
		{"too many retries", "[client]\nmax_retries = 1000\n", "client.max_retries"},
		{"long device id", "[client]\ndevice_id = \"" + strings.Repeat("a", 57) + "\"\n", "client.device_id"},
		{"bad probe method", "[conflict_detection]\nmethod = \"arp\"\n", "conflict_detection.method"},
		{"bad probe port", "[conflict_detection]\nprobe_port = 70000\n", "conflict_detection.probe_port"},
		{"bad metrics listen", "[metrics]\nlisten = \"nowhere\"\n", "metrics.listen"},
		{"script without command", "[[hooks.script]]\nname = \"x\"\n", "hooks.script[0].command"},
		{"webhook bad url", "[[hooks.webhook]]\nname = \"x\"\nurl = \"not a url\"\n", "hooks.webhook[0].url"},
		{"webhook bad template", "[[hooks.webhook]]\nname = \"x\"\nurl = \"http://a\"\ntemplate = \"teams\"\n", "hooks.webhook[0].template"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("1h30m")
	if err != nil {
		t.Fatalf("ParseDuration error: %v", err)
	}
	if d != 90*time.Minute {
		t.Errorf("ParseDuration = %v, want 90m", d)
	}

	if _, err := ParseDuration("bogus"); err == nil {
		t.Error("expected error for invalid duration")
	}
}
