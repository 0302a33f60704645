// Package conflict checks that an offered address is not already in use
// before the client commits to it.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/internal/transport"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// Prober tests whether an address is already in use. Probe returns true when
// another host answered for ip. It must return once ctx is done.
type Prober interface {
	Probe(ctx context.Context, ip net.IP) (bool, error)
	Method() string
}

// DefaultProbePort is the UDP port the send prober targets.
const DefaultProbePort = 5000

var probePayload = []byte("CHECK_IP_CONFLICT")

// DeadlineSender sends a datagram, giving up at the context deadline.
// transport.UDP implements it.
type DeadlineSender interface {
	SendToContext(ctx context.Context, b []byte, dst *net.UDPAddr) (int, error)
}

// SendProber treats send completion as proof that something owns the
// address: a send to ip can only complete once the link layer resolved it.
// A send that misses its deadline means nobody answered, so the address is
// clear. This only holds for senders that block on link-layer resolution.
type SendProber struct {
	sender DeadlineSender
	port   int
	logger *slog.Logger
}

// NewSendProber creates a send-completion prober targeting port on the
// candidate address.
func NewSendProber(sender DeadlineSender, port int, logger *slog.Logger) *SendProber {
	if port <= 0 {
		port = DefaultProbePort
	}
	return &SendProber{sender: sender, port: port, logger: logger}
}

// Method returns the detection method name.
func (p *SendProber) Method() string {
	return string(dhcpv4.DetectionSendProbe)
}

// Probe sends the probe payload to ip and classifies the result.
func (p *SendProber) Probe(ctx context.Context, ip net.IP) (bool, error) {
	dst := &net.UDPAddr{IP: ip, Port: p.port}
	_, err := p.sender.SendToContext(ctx, probePayload, dst)
	switch {
	case err == nil:
		p.logger.Debug("probe send completed (conflict)", "target_ip", ip.String())
		return true, nil
	case errors.Is(err, transport.ErrSendTimeout):
		p.logger.Debug("probe send timed out (clear)", "target_ip", ip.String())
		return false, nil
	default:
		return false, fmt.Errorf("sending probe to %s: %w", dst, err)
	}
}
