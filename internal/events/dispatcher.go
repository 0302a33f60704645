package events

import (
	"log/slog"
	"strings"
	"time"
)

// Dispatcher routes events from the bus to script hooks and webhooks.
// Hook failures never propagate back into the client state machine.
type Dispatcher struct {
	bus         *Bus
	scripts     *ScriptRunner
	webhooks    *WebhookSender
	logger      *slog.Logger
	scriptCfgs  []ScriptConfig
	webhookCfgs []WebhookConfig
	ch          chan Event
	done        chan struct{}
	stopped     chan struct{}
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(bus *Bus, logger *slog.Logger, scriptConcurrency int, webhookTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		scripts:  NewScriptRunner(scriptConcurrency, logger),
		webhooks: NewWebhookSender(webhookTimeout, logger),
		logger:   logger,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// AddScript registers a script hook.
func (d *Dispatcher) AddScript(cfg ScriptConfig) {
	d.scriptCfgs = append(d.scriptCfgs, cfg)
}

// AddWebhook registers a webhook hook.
func (d *Dispatcher) AddWebhook(cfg WebhookConfig) {
	d.webhookCfgs = append(d.webhookCfgs, cfg)
}

// Subscribe attaches the dispatcher to the bus. Call before Start when events
// published right after startup must not be missed.
func (d *Dispatcher) Subscribe() {
	if d.ch == nil {
		d.ch = d.bus.Subscribe(100)
	}
}

// Start subscribes to the event bus and begins dispatching. Call in a goroutine.
func (d *Dispatcher) Start() {
	defer close(d.stopped)
	d.Subscribe()

	d.logger.Info("event dispatcher started",
		"script_hooks", len(d.scriptCfgs),
		"webhook_hooks", len(d.webhookCfgs))

	for {
		select {
		case evt, ok := <-d.ch:
			if !ok {
				return
			}
			d.dispatch(evt)
		case <-d.done:
			return
		}
	}
}

// Stop dispatches events already queued, shuts down the dispatcher and waits
// for pending hooks. Stop the bus first so nothing is left in flight.
func (d *Dispatcher) Stop() {
	close(d.done)
	if d.ch != nil {
		<-d.stopped
		d.bus.Unsubscribe(d.ch)
		for evt := range d.ch {
			d.dispatch(evt)
		}
	}
	d.scripts.Wait()
	d.webhooks.Wait()
	d.logger.Info("event dispatcher stopped")
}

// dispatch routes a single event to matching hooks.
func (d *Dispatcher) dispatch(evt Event) {
	evtType := string(evt.Type)

	for _, cfg := range d.scriptCfgs {
		if matchesEvent(cfg.Events, evtType) {
			d.scripts.Run(cfg, evt)
		}
	}

	for _, cfg := range d.webhookCfgs {
		if matchesEvent(cfg.Events, evtType) {
			d.webhooks.Send(cfg, evt)
		}
	}
}

// matchesEvent checks if the event type matches any of the configured patterns.
// Supports exact match and wildcard patterns (e.g., "lease.*", "*").
func matchesEvent(patterns []string, eventType string) bool {
	if len(patterns) == 0 {
		return true // no filter = match all
	}
	for _, p := range patterns {
		if p == "*" || p == eventType {
			return true
		}
		if strings.HasSuffix(p, ".*") {
			prefix := strings.TrimSuffix(p, ".*")
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}
