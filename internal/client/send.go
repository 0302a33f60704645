package client

import (
	"fmt"
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
	"github.com/athena-dhcpd/athena-dhcpc/internal/wire"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

var broadcastAddr = &net.UDPAddr{IP: dhcpv4.BroadcastIP, Port: dhcpv4.ServerPort}

func (c *Client) params() wire.Params {
	return wire.Params{
		XID:      c.ls.XID,
		MAC:      c.cfg.MAC,
		Hostname: c.hostname,
	}
}

// serverAddr is where unicast messages go: the server identifier, then the
// address the OFFER came from, then broadcast.
func (c *Client) serverAddr() *net.UDPAddr {
	switch {
	case !dhcpv4.IsZeroIP(c.ls.ServerIdentifier):
		return &net.UDPAddr{IP: c.ls.ServerIdentifier, Port: dhcpv4.ServerPort}
	case !dhcpv4.IsZeroIP(c.ls.ServerRealAddress):
		return &net.UDPAddr{IP: c.ls.ServerRealAddress, Port: dhcpv4.ServerPort}
	default:
		return broadcastAddr
	}
}

func (c *Client) sendDiscover() error {
	n, err := wire.EncodeDiscover(&c.buf, c.params())
	if err != nil {
		return fmt.Errorf("encoding DHCPDISCOVER: %w", err)
	}
	return c.transmit(dhcpv4.MessageTypeDiscover, n, broadcastAddr)
}

// sendSelectingRequest broadcasts a REQUEST naming the offered address and
// the chosen server.
func (c *Client) sendSelectingRequest() error {
	p := c.params()
	p.RequestedAddr = c.ls.OfferedAddress
	p.ServerID = c.ls.ServerIdentifier
	n, err := wire.EncodeRequest(&c.buf, p)
	if err != nil {
		return fmt.Errorf("encoding DHCPREQUEST: %w", err)
	}
	return c.transmit(dhcpv4.MessageTypeRequest, n, broadcastAddr)
}

// sendRenewalRequest unicasts a REQUEST with the leased address in ciaddr.
func (c *Client) sendRenewalRequest() error {
	p := c.params()
	p.ClientAddr = c.ls.OfferedAddress
	p.Renewal = true
	n, err := wire.EncodeRequest(&c.buf, p)
	if err != nil {
		return fmt.Errorf("encoding DHCPREQUEST: %w", err)
	}
	return c.transmit(dhcpv4.MessageTypeRequest, n, c.serverAddr())
}

func (c *Client) sendDecline() error {
	p := c.params()
	p.RequestedAddr = c.ls.OfferedAddress
	p.ServerID = c.ls.ServerIdentifier
	n, err := wire.EncodeReleaseOrDecline(&c.buf, p, true)
	if err != nil {
		return fmt.Errorf("encoding DHCPDECLINE: %w", err)
	}
	return c.transmit(dhcpv4.MessageTypeDecline, n, broadcastAddr)
}

func (c *Client) sendRelease() error {
	p := c.params()
	p.ClientAddr = c.ls.OfferedAddress
	p.ServerID = c.ls.ServerIdentifier
	n, err := wire.EncodeReleaseOrDecline(&c.buf, p, false)
	if err != nil {
		return fmt.Errorf("encoding DHCPRELEASE: %w", err)
	}
	return c.transmit(dhcpv4.MessageTypeRelease, n, c.serverAddr())
}

func (c *Client) transmit(msgType dhcpv4.MessageType, n int, dst *net.UDPAddr) error {
	if _, err := c.tr.SendTo(c.buf.Bytes()[:n], dst); err != nil {
		metrics.SendErrors.WithLabelValues(msgType.String()).Inc()
		return fmt.Errorf("sending %s to %s: %w", msgType, dst, err)
	}
	metrics.PacketsSent.WithLabelValues(msgType.String()).Inc()
	c.logger.Debug("sent",
		"msg_type", msgType.String(),
		"xid", xidString(c.ls.XID),
		"dst", dst.String(),
		"size", n)
	return nil
}
