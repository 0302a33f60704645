package client

import (
	"bytes"
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
	"github.com/athena-dhcpd/athena-dhcpc/internal/wire"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// ParseMessage validates a datagram received from src and, when it belongs to
// this client, holds it for the next state handler. It returns the DHCP
// message type, or 0 when the datagram was discarded.
func (c *Client) ParseMessage(data []byte, src *net.UDPAddr) dhcpv4.MessageType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parseMessage(data, src)
}

func (c *Client) parseMessage(data []byte, src *net.UDPAddr) dhcpv4.MessageType {
	c.hasPending = false

	if src == nil || src.Port != dhcpv4.ServerPort {
		return c.drop("wrong_port", src)
	}
	if c.serverPinned() && !src.IP.Equal(c.ls.ServerIdentifier) && !src.IP.Equal(c.ls.ServerRealAddress) {
		return c.drop("foreign_server", src)
	}

	reply, err := wire.ParseReply(data)
	if err != nil {
		c.logger.Debug("malformed reply", "src", src.String(), "error", err)
		return c.drop("malformed", src)
	}
	if reply.Op != dhcpv4.OpCodeBootReply {
		return c.drop("not_reply", src)
	}
	if !bytes.Equal(reply.CHAddr, c.cfg.MAC) {
		return c.drop("chaddr_mismatch", src)
	}
	if reply.XID != c.ls.XID {
		return c.drop("xid_mismatch", src)
	}
	if reply.MessageType == 0 {
		return c.drop("no_message_type", src)
	}

	c.pending = reply
	c.pendingSrc = src
	c.hasPending = true
	metrics.PacketsReceived.WithLabelValues(reply.MessageType.String()).Inc()
	c.logger.Debug("received",
		"msg_type", reply.MessageType.String(),
		"xid", xidString(reply.XID),
		"src", src.String(),
		"yiaddr", ipString(reply.YIAddr))
	return reply.MessageType
}

func (c *Client) drop(reason string, src *net.UDPAddr) dhcpv4.MessageType {
	metrics.PacketsDropped.WithLabelValues(reason).Inc()
	if src != nil {
		c.logger.Debug("dropping datagram", "reason", reason, "src", src.String())
	} else {
		c.logger.Debug("dropping datagram", "reason", reason)
	}
	return 0
}

// commit copies the configuration from the pending reply into the lease.
func (c *Client) commit() {
	r := c.pending
	c.ls.OfferedAddress = r.YIAddr
	c.ls.SubnetMask = r.SubnetMask
	c.ls.Gateway = r.Router
	c.ls.DNSServer = r.DNSServer
	if r.HasLeaseTime {
		c.ls.LeaseSeconds = r.LeaseSeconds
	} else {
		c.ls.LeaseSeconds = dhcpv4.InfiniteLease
	}
}
