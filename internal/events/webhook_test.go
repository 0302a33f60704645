package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testSender() *WebhookSender {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWebhookSender(5*time.Second, logger)
}

// capture records the last request seen by a test endpoint.
type capture struct {
	mu     sync.Mutex
	header http.Header
	body   []byte
	method string
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.header = r.Header.Clone()
		c.body = body
		c.method = r.Method
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *capture) get() (http.Header, []byte, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header, c.body, c.method
}

func boundEvent() Event {
	return Event{
		Type:      EventLeaseBound,
		Timestamp: time.Unix(1700000000, 0),
		Client:    &ClientData{MAC: "00:08:dc:11:11:11", Interface: "eth0", Hostname: "athena-111111"},
		Lease: &LeaseData{
			IP:           net.IPv4(192, 168, 1, 50),
			SubnetMask:   net.IPv4(255, 255, 255, 0),
			Router:       net.IPv4(192, 168, 1, 1),
			ServerID:     net.IPv4(192, 168, 1, 1),
			LeaseSeconds: 86400,
			XID:          0x12345678,
		},
	}
}

func TestWebhookDeliversLeaseEvent(t *testing.T) {
	var c capture
	server := httptest.NewServer(c.handler(http.StatusNoContent))
	defer server.Close()

	sender := testSender()
	sender.Send(WebhookConfig{Name: "apply", URL: server.URL, Retries: 1}, boundEvent())
	sender.Wait()

	header, body, method := c.get()
	if method != http.MethodPost {
		t.Errorf("method = %s, want POST", method)
	}
	if got := header.Get("X-Athena-Event"); got != "lease.bound" {
		t.Errorf("X-Athena-Event = %q, want lease.bound", got)
	}
	if header.Get("X-Athena-Signature") != "" {
		t.Error("unexpected signature without a secret")
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		t.Fatalf("body is not an event: %v", err)
	}
	if evt.Lease == nil || !evt.Lease.IP.Equal(net.IPv4(192, 168, 1, 50)) || evt.Lease.XID != 0x12345678 {
		t.Errorf("unexpected lease payload %+v", evt.Lease)
	}
}

func TestWebhookSignature(t *testing.T) {
	var c capture
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	sender := testSender()
	sender.Send(WebhookConfig{Name: "signed", URL: server.URL, Secret: "s3cret", Retries: 1}, boundEvent())
	sender.Wait()

	header, body, _ := c.get()
	if ts := header.Get("X-Athena-Timestamp"); ts != "1700000000" {
		t.Errorf("X-Athena-Timestamp = %q, want 1700000000", ts)
	}

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte("1700000000." + string(body)))
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if got := header.Get("X-Athena-Signature"); got != want {
		t.Errorf("X-Athena-Signature = %q, want %q", got, want)
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := testSender()
	sender.Send(WebhookConfig{
		Name:         "flaky",
		URL:          server.URL,
		Retries:      3,
		RetryBackoff: 5 * time.Millisecond,
	}, Event{Type: EventConflictDetected, Timestamp: time.Now()})
	sender.Wait()

	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestWebhookClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sender := testSender()
	sender.Send(WebhookConfig{
		Name:         "bad-token",
		URL:          server.URL,
		Retries:      3,
		RetryBackoff: 5 * time.Millisecond,
	}, boundEvent())
	sender.Wait()

	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestWebhookCustomHeadersAndMethod(t *testing.T) {
	var c capture
	server := httptest.NewServer(c.handler(http.StatusOK))
	defer server.Close()

	sender := testSender()
	sender.Send(WebhookConfig{
		Name:    "put",
		URL:     server.URL,
		Method:  http.MethodPut,
		Headers: map[string]string{"Authorization": "Bearer token"},
		Retries: 1,
	}, boundEvent())
	sender.Wait()

	header, _, method := c.get()
	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if got := header.Get("Authorization"); got != "Bearer token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&statusError{code: 500}, true},
		{&statusError{code: 503}, true},
		{&statusError{code: 429}, true},
		{&statusError{code: 408}, true},
		{&statusError{code: 404}, false},
		{&statusError{code: 401}, false},
		{io.ErrUnexpectedEOF, true},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func slackText(t *testing.T, evt Event) string {
	t.Helper()
	body, err := slackBody(evt)
	if err != nil {
		t.Fatalf("slackBody error: %v", err)
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	return payload.Text
}

func TestSlackBodyLeaseChanged(t *testing.T) {
	evt := boundEvent()
	evt.Type = EventLeaseChanged
	evt.Lease.IP = net.IPv4(192, 168, 1, 77)
	evt.Lease.OldIP = net.IPv4(192, 168, 1, 50)
	evt.Lease.LeaseSeconds = 3600

	text := slackText(t, evt)
	for _, want := range []string{
		"*lease.changed* on `athena-111111` (00:08:dc:11:11:11) via eth0",
		"Address `192.168.1.77/24` (was `192.168.1.50`)",
		"Gateway `192.168.1.1`",
		"Lease 1h0m0s",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("slack text missing %q:\n%s", want, text)
		}
	}
}

func TestSlackBodyConflict(t *testing.T) {
	text := slackText(t, Event{
		Type: EventConflictDetected,
		Conflict: &ConflictData{
			IP:              net.IPv4(192, 168, 1, 60),
			DetectionMethod: "icmp_probe",
		},
		Reason: "address in use",
	})
	if !strings.Contains(text, "Address `192.168.1.60` is already in use (icmp_probe)") {
		t.Errorf("unexpected conflict text %q", text)
	}
	if !strings.HasSuffix(text, "_address in use_") {
		t.Errorf("reason missing from %q", text)
	}
}

func TestSign(t *testing.T) {
	a := sign("secret", "1", []byte("payload"))
	if len(a) != 64 {
		t.Errorf("signature length = %d, want 64", len(a))
	}
	if a != sign("secret", "1", []byte("payload")) {
		t.Error("signature not deterministic")
	}
	if a == sign("secret", "2", []byte("payload")) {
		t.Error("timestamp does not affect signature")
	}
	if a == sign("other", "1", []byte("payload")) {
		t.Error("secret does not affect signature")
	}
}
