package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
)

// ScriptRunner executes script hooks from a bounded queue. Scripts are how
// the host applies a lease: they receive the address configuration and run
// whatever ip/route/resolv.conf commands the system needs. With one worker
// (the default) scripts run strictly in event order.
type ScriptRunner struct {
	logger  *slog.Logger
	workers int
	queue   chan scriptJob
	pending sync.WaitGroup
	once    sync.Once
}

type scriptJob struct {
	cfg ScriptConfig
	evt Event
}

// ScriptConfig describes a single script hook binding.
type ScriptConfig struct {
	Name    string
	Events  []string
	Command string
	Timeout time.Duration
}

// scriptQueueSize bounds jobs waiting for a worker.
const scriptQueueSize = 64

// NewScriptRunner creates a new script runner with the given number of workers.
func NewScriptRunner(workers int, logger *slog.Logger) *ScriptRunner {
	if workers <= 0 {
		workers = 1
	}
	return &ScriptRunner{
		logger:  logger,
		workers: workers,
		queue:   make(chan scriptJob, scriptQueueSize),
	}
}

func (r *ScriptRunner) startWorkers() {
	for i := 0; i < r.workers; i++ {
		go func() {
			for job := range r.queue {
				r.execute(job.cfg, job.evt)
				r.pending.Done()
			}
		}()
	}
}

// Run queues a script hook for the given event. It never blocks; when the
// queue is full the execution is dropped.
// Scripts receive event data via environment variables (ATHENA_* prefix) AND JSON on stdin.
func (r *ScriptRunner) Run(cfg ScriptConfig, evt Event) {
	r.once.Do(r.startWorkers)

	r.pending.Add(1)
	select {
	case r.queue <- scriptJob{cfg: cfg, evt: evt}:
	default:
		r.pending.Done()
		metrics.HookExecutions.WithLabelValues("script", "dropped").Inc()
		r.logger.Warn("script hook queue full, dropping execution",
			"hook_name", cfg.Name,
			"event", string(evt.Type))
	}
}

// execute runs a single script with timeout, env vars, and JSON stdin.
func (r *ScriptRunner) execute(cfg ScriptConfig, evt Event) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cfg.Command)

	// Set environment variables from event
	envVars := evt.ToEnvVars()
	envVars["ATHENA_HOOK_NAME"] = cfg.Name
	env := os.Environ()
	for k, v := range envVars {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env

	// Pass JSON on stdin
	jsonData, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("failed to marshal event for script stdin",
			"hook_name", cfg.Name,
			"error", err)
		return
	}
	cmd.Stdin = bytes.NewReader(jsonData)

	// Capture stdout/stderr
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()

	err = cmd.Run()
	duration := time.Since(start)

	if err != nil {
		metrics.HookExecutions.WithLabelValues("script", "error").Inc()
		metrics.HookDuration.WithLabelValues("script").Observe(duration.Seconds())
		if ctx.Err() == context.DeadlineExceeded {
			r.logger.Error("script hook timed out, killed",
				"hook_name", cfg.Name,
				"command", cfg.Command,
				"timeout", timeout.String(),
				"event", string(evt.Type))
		} else {
			r.logger.Error("script hook failed",
				"hook_name", cfg.Name,
				"command", cfg.Command,
				"error", err,
				"stderr", stderr.String(),
				"duration", duration.String(),
				"event", string(evt.Type))
		}
		return
	}

	metrics.HookExecutions.WithLabelValues("script", "success").Inc()
	metrics.HookDuration.WithLabelValues("script").Observe(duration.Seconds())

	r.logger.Debug("script hook completed",
		"hook_name", cfg.Name,
		"duration", duration.String(),
		"event", string(evt.Type),
		"exit_code", cmd.ProcessState.ExitCode())
}

// Wait blocks until every queued script has completed.
func (r *ScriptRunner) Wait() {
	r.pending.Wait()
}
