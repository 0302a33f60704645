package conflict

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// DefaultProbeTimeout bounds one probe when the detector has no timeout set.
const DefaultProbeTimeout = 500 * time.Millisecond

// Detector wraps a Prober with a bounded timeout, a cache of recent
// conflicts, metrics and logging. It is itself a Prober.
type Detector struct {
	prober  Prober
	cache   *ProbeCache
	timeout time.Duration
	logger  *slog.Logger
}

// DetectorConfig holds configuration for the conflict detector.
type DetectorConfig struct {
	ProbeTimeout time.Duration
	CacheTTL     time.Duration
}

// NewDetector creates a detector around prober.
func NewDetector(prober Prober, logger *slog.Logger, cfg DetectorConfig) *Detector {
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Detector{
		prober:  prober,
		cache:   NewProbeCache(cfg.CacheTTL),
		timeout: timeout,
		logger:  logger,
	}
}

// Method returns the wrapped prober's method.
func (d *Detector) Method() string {
	return d.prober.Method()
}

// Cache returns the conflict cache.
func (d *Detector) Cache() *ProbeCache {
	return d.cache
}

// Probe checks ip, consulting the cache first. The network probe never runs
// longer than the configured timeout.
func (d *Detector) Probe(ctx context.Context, ip net.IP) (bool, error) {
	if d.cache.IsConflict(ip) {
		metrics.ProbeCacheHits.Inc()
		metrics.ConflictProbes.WithLabelValues(string(dhcpv4.DetectionCache), "conflict").Inc()
		d.logger.Info("address recently conflicted, skipping probe",
			"ip", ip.String())
		return true, nil
	}
	metrics.ProbeCacheMisses.Inc()

	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	method := d.prober.Method()
	start := time.Now()
	conflict, err := d.prober.Probe(probeCtx, ip)
	duration := time.Since(start)
	metrics.ConflictProbeDuration.WithLabelValues(method).Observe(duration.Seconds())

	if err != nil {
		metrics.ConflictProbes.WithLabelValues(method, "error").Inc()
		d.logger.Error("probe error",
			"ip", ip.String(),
			"method", method,
			"error", err,
			"duration", duration.String())
		return false, err
	}

	if conflict {
		metrics.ConflictProbes.WithLabelValues(method, "conflict").Inc()
		d.cache.MarkConflict(ip)
		d.logger.Warn("IP conflict detected",
			"ip", ip.String(),
			"method", method,
			"duration", duration.String())
		return true, nil
	}

	metrics.ConflictProbes.WithLabelValues(method, "clear").Inc()
	d.logger.Debug("IP clear after probe",
		"ip", ip.String(),
		"method", method,
		"duration", duration.String())
	return false, nil
}
