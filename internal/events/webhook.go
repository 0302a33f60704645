package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
)

// WebhookSender posts lease events to HTTP endpoints. Each delivery runs in
// its own goroutine so a slow endpoint never holds up the dispatcher.
type WebhookSender struct {
	client *http.Client
	logger *slog.Logger
	wg     sync.WaitGroup
}

// WebhookConfig describes a single webhook binding.
type WebhookConfig struct {
	Name         string
	Events       []string
	URL          string
	Method       string
	Headers      map[string]string
	Timeout      time.Duration // per attempt; zero uses the sender's client timeout
	Retries      int
	RetryBackoff time.Duration
	Secret       string
	Template     string // "slack" or empty for the raw event JSON
}

// NewWebhookSender creates a sender whose HTTP client gives up after timeout.
func NewWebhookSender(timeout time.Duration, logger *slog.Logger) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    4,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		logger: logger,
	}
}

// Send delivers evt in the background.
func (w *WebhookSender) Send(cfg WebhookConfig, evt Event) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliver(cfg, evt)
	}()
}

// Wait blocks until every delivery has succeeded or exhausted its retries.
func (w *WebhookSender) Wait() {
	w.wg.Wait()
}

// statusError is a non-2xx answer from the endpoint.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook returned HTTP %d", e.code)
}

// retryable reports whether another attempt could succeed. Client errors other
// than 408 and 429 mean the request itself is wrong.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	return se.code >= 500 || se.code == http.StatusRequestTimeout || se.code == http.StatusTooManyRequests
}

// deliver sends one event, doubling the backoff after each failed attempt.
func (w *WebhookSender) deliver(cfg WebhookConfig, evt Event) {
	body, err := webhookBody(cfg.Template, evt)
	if err != nil {
		metrics.HookExecutions.WithLabelValues("webhook", "error").Inc()
		w.logger.Error("encoding webhook payload",
			"hook_name", cfg.Name,
			"event", string(evt.Type),
			"error", err)
		return
	}

	attempts := max(cfg.Retries, 1)
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	start := time.Now()
	defer func() {
		metrics.HookDuration.WithLabelValues("webhook").Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; attempt <= attempts; attempt++ {
		err = w.post(cfg, evt, body)
		if err == nil {
			metrics.HookExecutions.WithLabelValues("webhook", "success").Inc()
			w.logger.Debug("webhook delivered",
				"hook_name", cfg.Name,
				"event", string(evt.Type),
				"attempt", attempt)
			return
		}
		if !retryable(err) || attempt == attempts {
			break
		}

		w.logger.Warn("webhook attempt failed",
			"hook_name", cfg.Name,
			"url", cfg.URL,
			"attempt", attempt,
			"retry_in", backoff.String(),
			"error", err)
		time.Sleep(backoff)
		backoff *= 2
	}

	metrics.HookExecutions.WithLabelValues("webhook", "error").Inc()
	w.logger.Error("webhook delivery failed",
		"hook_name", cfg.Name,
		"url", cfg.URL,
		"event", string(evt.Type),
		"error", err)
}

// post performs one HTTP attempt.
func (w *WebhookSender) post(cfg WebhookConfig, evt Event, body []byte) error {
	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "athena-dhcpc")
	req.Header.Set("X-Athena-Event", string(evt.Type))
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Secret != "" {
		ts := strconv.FormatInt(evt.Timestamp.Unix(), 10)
		req.Header.Set("X-Athena-Timestamp", ts)
		req.Header.Set("X-Athena-Signature", "sha256="+sign(cfg.Secret, ts, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode}
	}
	return nil
}

// sign returns the hex HMAC-SHA256 of "<timestamp>.<body>". Binding the
// timestamp lets receivers reject replayed deliveries.
func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(template string, evt Event) ([]byte, error) {
	if template == "slack" {
		return slackBody(evt)
	}
	return json.Marshal(evt)
}

// slackBody renders the event as a one-message Slack summary, e.g.
// "*lease.bound* on `athena-111111` (00:08:dc:11:11:11)\nAddress `192.168.1.50/24` ...".
func slackBody(evt Event) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*", evt.Type)
	if c := evt.Client; c != nil {
		if c.Hostname != "" {
			fmt.Fprintf(&b, " on `%s` (%s)", c.Hostname, c.MAC)
		} else {
			fmt.Fprintf(&b, " on `%s`", c.MAC)
		}
		if c.Interface != "" {
			fmt.Fprintf(&b, " via %s", c.Interface)
		}
	}

	switch {
	case evt.Conflict != nil:
		fmt.Fprintf(&b, "\nAddress `%s` is already in use (%s)", evt.Conflict.IP, evt.Conflict.DetectionMethod)
		if evt.Conflict.ServerID != nil {
			fmt.Fprintf(&b, ", offered by `%s`", evt.Conflict.ServerID)
		}
	case evt.Lease != nil && evt.Lease.IP != nil:
		l := evt.Lease
		addr := l.IP.String()
		if n := l.PrefixLength(); n >= 0 {
			addr += "/" + strconv.Itoa(n)
		}
		fmt.Fprintf(&b, "\nAddress `%s`", addr)
		if l.OldIP != nil {
			fmt.Fprintf(&b, " (was `%s`)", l.OldIP)
		}
		if l.Router != nil {
			fmt.Fprintf(&b, "\nGateway `%s`", l.Router)
		}
		if l.ServerID != nil {
			fmt.Fprintf(&b, "\nServer `%s`", l.ServerID)
		}
		if l.LeaseSeconds == 0xFFFFFFFF {
			b.WriteString("\nLease infinite")
		} else if l.LeaseSeconds > 0 {
			fmt.Fprintf(&b, "\nLease %s", time.Duration(l.LeaseSeconds)*time.Second)
		}
	}

	if evt.Reason != "" {
		fmt.Fprintf(&b, "\n_%s_", evt.Reason)
	}

	return json.Marshal(struct {
		Text string `json:"text"`
	}{Text: b.String()})
}
