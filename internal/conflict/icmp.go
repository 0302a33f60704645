package conflict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// ICMPProber sends ICMP Echo Requests to the offered address (RFC 792).
// Any echo reply from it means another host already holds the address.
// The socket is opened once and shared across probes.
type ICMPProber struct {
	conn       *icmp.PacketConn
	privileged bool
	logger     *slog.Logger
	available  bool
	id         int
	seq        uint16
	mu         sync.Mutex
}

// NewICMPProber opens an ICMP socket. It tries a raw socket first and then an
// unprivileged datagram ICMP socket. If neither opens it logs a loud warning
// and returns a prober that always reports "clear".
func NewICMPProber(logger *slog.Logger) *ICMPProber {
	p := &ICMPProber{
		logger: logger,
		id:     os.Getpid() & 0xffff,
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err == nil {
		p.conn = conn
		p.privileged = true
	} else {
		udpConn, udpErr := icmp.ListenPacket("udp4", "0.0.0.0")
		if udpErr != nil {
			logger.Error("FAILED TO OPEN ICMP SOCKET: address conflict detection via ICMP is DISABLED",
				"error", err,
				"unprivileged_error", udpErr,
				"hint", "Grant CAP_NET_RAW or widen net.ipv4.ping_group_range")
			return p
		}
		p.conn = udpConn
	}

	p.available = true
	logger.Info("ICMP prober initialized", "privileged", p.privileged)
	return p
}

// Available returns true if the prober has a working socket.
func (p *ICMPProber) Available() bool {
	return p.available
}

// Method returns the detection method name.
func (p *ICMPProber) Method() string {
	return string(dhcpv4.DetectionICMPProbe)
}

// Close closes the ICMP socket.
func (p *ICMPProber) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Probe sends one echo request to targetIP and waits until ctx is done for a
// reply. A reply means conflict; the deadline passing means clear.
func (p *ICMPProber) Probe(ctx context.Context, targetIP net.IP) (bool, error) {
	if !p.available {
		return false, nil // degraded mode, assume clear
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	seq := int(p.seq)

	start := time.Now()

	msg := &icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte("athena-dhcpc-probe"),
		},
	}
	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		return false, fmt.Errorf("marshalling ICMP echo request: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: targetIP}
	if !p.privileged {
		dst = &net.UDPAddr{IP: targetIP}
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(time.Second)
	}
	if err := p.conn.SetDeadline(deadline); err != nil {
		return false, fmt.Errorf("setting ICMP deadline: %w", err)
	}

	if _, err := p.conn.WriteTo(msgBytes, dst); err != nil {
		return false, fmt.Errorf("sending ICMP echo to %s: %w", targetIP, err)
	}

	buf := make([]byte, dhcpv4.MaxPacketSize)
	for {
		if ctx.Err() != nil {
			p.logTimeout(targetIP, start)
			return false, nil
		}

		n, peer, err := p.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				p.logTimeout(targetIP, start)
				return false, nil
			}
			return false, fmt.Errorf("reading ICMP reply: %w", err)
		}

		reply, err := icmp.ParseMessage(1, buf[:n]) // 1 = ICMPv4
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq || !peerIP(peer).Equal(targetIP) {
			continue
		}
		// the kernel rewrites the ID on unprivileged sockets
		if p.privileged && echo.ID != p.id {
			continue
		}

		p.logger.Debug("ICMP probe reply received (conflict)",
			"target_ip", targetIP.String(),
			"duration", time.Since(start).String())
		return true, nil
	}
}

func (p *ICMPProber) logTimeout(targetIP net.IP, start time.Time) {
	p.logger.Debug("ICMP probe timeout (clear)",
		"target_ip", targetIP.String(),
		"duration", time.Since(start).String())
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	return nil
}
