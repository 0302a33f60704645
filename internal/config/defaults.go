package config

import "time"

// Default configuration values.
const (
	DefaultDeviceID            = "athena"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultPollInterval        = 10 * time.Millisecond
	DefaultRetryWait           = 10 * time.Second
	DefaultMaxRetries          = 2
	DefaultJournalDB           = "/var/lib/athena-dhcpc/journal.db"
	DefaultJournalMax          = 10000
	DefaultProbeMethod         = "icmp"
	DefaultProbeTimeout        = 500 * time.Millisecond
	DefaultProbePort           = 5000
	DefaultProbeCacheTTL       = 5 * time.Minute
	DefaultMetricsListen       = "127.0.0.1:9168"
	DefaultEventBufferSize     = 1000
	DefaultScriptConcurrency   = 1
	DefaultScriptTimeout       = 10 * time.Second
	DefaultWebhookTimeout      = 10 * time.Second
	DefaultWebhookRetries      = 3
	DefaultWebhookRetryBackoff = 2 * time.Second
)
