package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/athena-dhcpd/athena-dhcpc/internal/client"
	"github.com/athena-dhcpd/athena-dhcpc/internal/config"
	"github.com/athena-dhcpd/athena-dhcpc/internal/conflict"
	"github.com/athena-dhcpd/athena-dhcpc/internal/events"
	"github.com/athena-dhcpd/athena-dhcpc/internal/journal"
	"github.com/athena-dhcpd/athena-dhcpc/internal/logging"
	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
	"github.com/athena-dhcpd/athena-dhcpc/internal/transport"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// clockTick is the resolution of the client's millisecond clock.
const clockTick = 10 * time.Millisecond

type RunCmd struct {
	Config    string `short:"c" type:"path" default:"/etc/athena-dhcpc/config.toml" help:"Path to the TOML configuration file."`
	Interface string `short:"i" help:"Override client.interface from the configuration file."`
}

func (r *RunCmd) Run() error {
	cfg, err := config.Load(r.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return err
	}
	if r.Interface != "" {
		cfg.Client.Interface = r.Interface
	}

	logger := logging.Setup(cfg.Client.LogLevel, cfg.Client.LogFormat, os.Stdout)
	logger.Info("athena-dhcpc starting",
		"version", Version,
		"config", r.Config,
		"interface", cfg.Client.Interface)

	mac, err := resolveMAC(cfg.Client.MAC, cfg.Client.Interface)
	if err != nil {
		logger.Error("resolving hardware address", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tr := transport.NewUDP(transport.UDPOptions{Interface: cfg.Client.Interface}, logger)

	prober, closeProber := newProber(ctx, cfg, tr, logger)
	defer closeProber()

	c, err := client.New(client.Config{
		MAC:        mac,
		DeviceID:   cfg.Client.DeviceID,
		Interface:  cfg.Client.Interface,
		RetryWait:  cfg.RetryWait(),
		MaxRetries: cfg.Client.MaxRetries,
		InitialXID: cfg.Client.InitialXID,
	}, tr, prober, logger)
	if err != nil {
		logger.Error("creating client", "error", err)
		return err
	}
	logger.Info("client identity",
		"mac", mac.String(),
		"hostname", c.Hostname(),
		"retry_wait", cfg.RetryWait().String(),
		"max_retries", cfg.Client.MaxRetries)

	// Event bus, hooks and journal
	bus := events.NewBus(cfg.Hooks.EventBufferSize, logger)
	go bus.Start()

	dispatcher, err := newDispatcher(cfg, bus, logger)
	if err != nil {
		logger.Error("configuring hooks", "error", err)
		bus.Stop()
		return err
	}
	dispatcher.Subscribe()
	go dispatcher.Start()

	db, err := journal.Open(cfg.Client.JournalDB)
	if err != nil {
		logger.Error("opening lease journal", "path", cfg.Client.JournalDB, "error", err)
		bus.Stop()
		dispatcher.Stop()
		return err
	}
	defer db.Close()

	jrnl, err := journal.New(db, bus, cfg.Client.JournalMax, logger)
	if err != nil {
		logger.Error("initializing lease journal", "error", err)
		bus.Stop()
		dispatcher.Stop()
		return err
	}
	jrnl.Subscribe()
	go jrnl.Start()
	logger.Info("lease journal opened", "path", cfg.Client.JournalDB, "records", jrnl.Count())

	c.AddObserver(client.NewEventPublisher(bus, c))

	metrics.ClientStartTime.SetToCurrentTime()
	metrics.ClientInfo.WithLabelValues(Version, cfg.Client.Interface, mac.String()).Set(1)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetrics(cfg.Metrics.Listen, logger)
	}

	go c.Clock().Run(ctx, clockTick)

	pollLoop(ctx, c, cfg.PollInterval(), cfg.RetryWait(), logger)

	logger.Info("shutting down")
	if cfg.ReleaseOnExit() {
		if err := c.Release(); err != nil {
			logger.Warn("release failed", "error", err)
		}
	}
	if err := c.Close(); err != nil {
		logger.Warn("closing client socket", "error", err)
	}

	bus.Stop()
	dispatcher.Stop()
	jrnl.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}

	logger.Info("athena-dhcpc stopped")
	return nil
}

// pollLoop drives the client until ctx is done. A poll that fails on the
// socket holds off for one retry wait so a missing link does not spin.
func pollLoop(ctx context.Context, c *client.Client, interval, backoff time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch c.Poll(ctx) {
		case client.OutcomeUpdate:
			l := c.Lease()
			logger.Info("lease ready",
				"ip", l.Address.String(),
				"subnet_mask", ipOrEmpty(l.SubnetMask),
				"gateway", ipOrEmpty(l.Gateway),
				"dns_server", ipOrEmpty(l.DNSServer),
				"lease_seconds", l.LeaseSeconds,
				"infinite", l.Infinite())
		case client.OutcomeError:
			logger.Warn("poll failed, backing off", "backoff", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	}
}

// resolveMAC returns the configured hardware address, or the interface's own
// address when none is configured.
func resolveMAC(configured, iface string) (net.HardwareAddr, error) {
	if configured != "" {
		return dhcpv4.ParseMAC(configured)
	}
	if iface == "" {
		return nil, errors.New("client.mac is required when client.interface is not set")
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("looking up interface %s: %w", iface, err)
	}
	if len(ifi.HardwareAddr) != 6 {
		return nil, fmt.Errorf("interface %s has no Ethernet address", iface)
	}
	return ifi.HardwareAddr, nil
}

// newProber builds the conflict detector selected by config. The returned
// func releases the probe socket.
func newProber(ctx context.Context, cfg *config.Config, tr *transport.UDP, logger *slog.Logger) (conflict.Prober, func()) {
	if !cfg.ProbeEnabled() {
		logger.Info("conflict detection disabled")
		return nil, func() {}
	}

	var (
		p       conflict.Prober
		closeFn = func() {}
	)
	switch cfg.ConflictDetection.Method {
	case "send":
		p = conflict.NewSendProber(tr, cfg.ConflictDetection.ProbePort, logger)
		logger.Warn("send probes only detect conflicts where the stack blocks on ARP resolution",
			"probe_port", cfg.ConflictDetection.ProbePort)
	default:
		icmp := conflict.NewICMPProber(logger)
		p = icmp
		closeFn = func() { icmp.Close() }
	}

	det := conflict.NewDetector(p, logger, conflict.DetectorConfig{
		ProbeTimeout: cfg.ProbeTimeout(),
		CacheTTL:     cfg.ProbeCacheTTL(),
	})
	go cleanupLoop(ctx, det.Cache(), cfg.ProbeCacheTTL())

	logger.Info("conflict detection enabled",
		"method", det.Method(),
		"probe_timeout", cfg.ProbeTimeout().String(),
		"cache_ttl", cfg.ProbeCacheTTL().String())
	return det, closeFn
}

func cleanupLoop(ctx context.Context, cache *conflict.ProbeCache, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cache.Cleanup()
		}
	}
}

// newDispatcher registers the configured script and webhook hooks.
func newDispatcher(cfg *config.Config, bus *events.Bus, logger *slog.Logger) (*events.Dispatcher, error) {
	d := events.NewDispatcher(bus, logger, cfg.Hooks.ScriptConcurrency, cfg.WebhookTimeout())

	for _, s := range cfg.Hooks.Scripts {
		timeout := cfg.ScriptTimeout()
		if s.Timeout != "" {
			t, err := config.ParseDuration(s.Timeout)
			if err != nil {
				return nil, fmt.Errorf("script hook %s: timeout: %w", s.Name, err)
			}
			timeout = t
		}
		d.AddScript(events.ScriptConfig{
			Name:    s.Name,
			Events:  s.Events,
			Command: s.Command,
			Timeout: timeout,
		})
	}

	for _, w := range cfg.Hooks.Webhooks {
		var timeout time.Duration
		if w.Timeout != "" {
			t, err := config.ParseDuration(w.Timeout)
			if err != nil {
				return nil, fmt.Errorf("webhook %s: timeout: %w", w.Name, err)
			}
			timeout = t
		}
		backoff, err := config.ParseDuration(w.RetryBackoff)
		if err != nil {
			return nil, fmt.Errorf("webhook %s: retry_backoff: %w", w.Name, err)
		}
		d.AddWebhook(events.WebhookConfig{
			Name:         w.Name,
			Events:       w.Events,
			URL:          w.URL,
			Method:       w.Method,
			Headers:      w.Headers,
			Timeout:      timeout,
			Retries:      w.Retries,
			RetryBackoff: backoff,
			Secret:       w.Secret,
			Template:     w.Template,
		})
	}
	return d, nil
}

func startMetrics(listen string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", "listen", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

func ipOrEmpty(ip net.IP) string {
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
