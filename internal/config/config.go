// Package config handles TOML configuration parsing and validation for athena-dhcpc.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config is the top-level configuration for athena-dhcpc.
type Config struct {
	Client            ClientConfig            `toml:"client"`
	ConflictDetection ConflictDetectionConfig `toml:"conflict_detection"`
	Metrics           MetricsConfig           `toml:"metrics"`
	Hooks             HooksConfig             `toml:"hooks"`
}

// ClientConfig holds the client identity, retry policy and local storage.
type ClientConfig struct {
	Interface     string `toml:"interface"`
	MAC           string `toml:"mac" validate:"omitempty,mac"`
	DeviceID      string `toml:"device_id" validate:"max=56"`
	LogLevel      string `toml:"log_level" validate:"oneof=trace debug info warn warning error"`
	LogFormat     string `toml:"log_format" validate:"oneof=json text"`
	PollInterval  string `toml:"poll_interval" validate:"duration"`
	RetryWait     string `toml:"retry_wait" validate:"duration"`
	MaxRetries    int    `toml:"max_retries" validate:"gte=1,lte=255"`
	InitialXID    uint32 `toml:"initial_xid"`
	JournalDB     string `toml:"journal_db"`
	JournalMax    int    `toml:"journal_max" validate:"gte=0"`
	ReleaseOnExit *bool  `toml:"release_on_exit"`
}

// ConflictDetectionConfig holds the post-ACK address probe settings.
type ConflictDetectionConfig struct {
	Enabled      *bool  `toml:"enabled"`
	Method       string `toml:"method" validate:"oneof=send icmp"`
	ProbeTimeout string `toml:"probe_timeout" validate:"duration"`
	ProbePort    int    `toml:"probe_port" validate:"gte=1,lte=65535"`
	CacheTTL     string `toml:"cache_ttl" validate:"duration"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen" validate:"hostname_port"`
}

// HooksConfig holds event hook settings.
type HooksConfig struct {
	EventBufferSize   int           `toml:"event_buffer_size" validate:"gte=1"`
	ScriptConcurrency int           `toml:"script_concurrency" validate:"gte=1"`
	ScriptTimeout     string        `toml:"script_timeout" validate:"duration"`
	WebhookTimeout    string        `toml:"webhook_timeout" validate:"duration"`
	Scripts           []ScriptHook  `toml:"script" validate:"dive"`
	Webhooks          []WebhookHook `toml:"webhook" validate:"dive"`
}

// ScriptHook defines a script hook.
type ScriptHook struct {
	Name    string   `toml:"name" validate:"required"`
	Events  []string `toml:"events"`
	Command string   `toml:"command" validate:"required"`
	Timeout string   `toml:"timeout" validate:"omitempty,duration"`
}

// WebhookHook defines a webhook hook.
type WebhookHook struct {
	Name         string            `toml:"name" validate:"required"`
	Events       []string          `toml:"events"`
	URL          string            `toml:"url" validate:"required,url"`
	Method       string            `toml:"method" validate:"oneof=GET POST PUT"`
	Headers      map[string]string `toml:"headers"`
	Timeout      string            `toml:"timeout" validate:"omitempty,duration"`
	Retries      int               `toml:"retries" validate:"gte=0"`
	RetryBackoff string            `toml:"retry_backoff" validate:"duration"`
	Secret       string            `toml:"secret"`
	Template     string            `toml:"template" validate:"omitempty,oneof=slack"`
}

// Load reads and parses a TOML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text, applies defaults, and validates.
func Parse(data string) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in default values for unset fields.
func applyDefaults(cfg *Config) {
	c := &cfg.Client
	if c.DeviceID == "" {
		c.DeviceID = DefaultDeviceID
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.PollInterval == "" {
		c.PollInterval = DefaultPollInterval.String()
	}
	if c.RetryWait == "" {
		c.RetryWait = DefaultRetryWait.String()
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.JournalDB == "" {
		c.JournalDB = DefaultJournalDB
	}
	if c.JournalMax == 0 {
		c.JournalMax = DefaultJournalMax
	}
	if c.ReleaseOnExit == nil {
		c.ReleaseOnExit = boolPtr(true)
	}

	cd := &cfg.ConflictDetection
	if cd.Enabled == nil {
		cd.Enabled = boolPtr(true)
	}
	if cd.Method == "" {
		cd.Method = DefaultProbeMethod
	}
	if cd.ProbeTimeout == "" {
		cd.ProbeTimeout = DefaultProbeTimeout.String()
	}
	if cd.ProbePort == 0 {
		cd.ProbePort = DefaultProbePort
	}
	if cd.CacheTTL == "" {
		cd.CacheTTL = DefaultProbeCacheTTL.String()
	}

	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = DefaultMetricsListen
	}

	h := &cfg.Hooks
	if h.EventBufferSize == 0 {
		h.EventBufferSize = DefaultEventBufferSize
	}
	if h.ScriptConcurrency == 0 {
		h.ScriptConcurrency = DefaultScriptConcurrency
	}
	if h.ScriptTimeout == "" {
		h.ScriptTimeout = DefaultScriptTimeout.String()
	}
	if h.WebhookTimeout == "" {
		h.WebhookTimeout = DefaultWebhookTimeout.String()
	}
	for i := range h.Webhooks {
		if h.Webhooks[i].Method == "" {
			h.Webhooks[i].Method = "POST"
		}
		if h.Webhooks[i].Retries == 0 {
			h.Webhooks[i].Retries = DefaultWebhookRetries
		}
		if h.Webhooks[i].RetryBackoff == "" {
			h.Webhooks[i].RetryBackoff = DefaultWebhookRetryBackoff.String()
		}
	}
}

var validate = newValidator().validate

type structValidator struct {
	v *validator.Validate
}

func newValidator() *structValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return tomlName(f.Tag.Get("toml"), f.Name)
	})
	v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	return &structValidator{v: v}
}

// validate runs the struct tags, then the checks tags cannot express.
func (s *structValidator) validate(cfg *Config) error {
	if err := s.v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q check (value %v)", trimNamespace(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return err
	}

	if cfg.RetryWait() < time.Second {
		return fmt.Errorf("client.retry_wait must be at least 1s, got %s", cfg.Client.RetryWait)
	}
	if cfg.PollInterval() <= 0 {
		return fmt.Errorf("client.poll_interval must be positive, got %s", cfg.Client.PollInterval)
	}
	if cfg.ProbeTimeout() <= 0 {
		return fmt.Errorf("conflict_detection.probe_timeout must be positive, got %s", cfg.ConflictDetection.ProbeTimeout)
	}
	return nil
}

// trimNamespace turns "Config.client.mac" into "client.mac".
func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func tomlName(tag, field string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return field
	}
	return name
}

func boolPtr(b bool) *bool { return &b }

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// PollInterval returns how often the client state machine is polled.
func (cfg *Config) PollInterval() time.Duration {
	return durationOr(cfg.Client.PollInterval, DefaultPollInterval)
}

// RetryWait returns the wait between retransmissions.
func (cfg *Config) RetryWait() time.Duration {
	return durationOr(cfg.Client.RetryWait, DefaultRetryWait)
}

// ReleaseOnExit reports whether the lease is released at shutdown.
func (cfg *Config) ReleaseOnExit() bool {
	return cfg.Client.ReleaseOnExit == nil || *cfg.Client.ReleaseOnExit
}

// ProbeEnabled reports whether offered addresses are probed before binding.
func (cfg *Config) ProbeEnabled() bool {
	return cfg.ConflictDetection.Enabled == nil || *cfg.ConflictDetection.Enabled
}

// ProbeTimeout returns the bound on one conflict probe.
func (cfg *Config) ProbeTimeout() time.Duration {
	return durationOr(cfg.ConflictDetection.ProbeTimeout, DefaultProbeTimeout)
}

// ProbeCacheTTL returns how long a conflict verdict is remembered.
func (cfg *Config) ProbeCacheTTL() time.Duration {
	return durationOr(cfg.ConflictDetection.CacheTTL, DefaultProbeCacheTTL)
}

// ScriptTimeout returns the default script hook timeout.
func (cfg *Config) ScriptTimeout() time.Duration {
	return durationOr(cfg.Hooks.ScriptTimeout, DefaultScriptTimeout)
}

// WebhookTimeout returns the shared webhook HTTP client timeout.
func (cfg *Config) WebhookTimeout() time.Duration {
	return durationOr(cfg.Hooks.WebhookTimeout, DefaultWebhookTimeout)
}

// ParseDuration is a helper for parsing Go-style duration strings.
func ParseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
