package client

import (
	"context"
	"errors"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
	"github.com/athena-dhcpd/athena-dhcpc/internal/transport"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// Poll runs one non-blocking step of the state machine: it opens the socket
// if needed, consumes at most one pending datagram and acts on it or on an
// expired timer. The only wait inside Poll is the conflict probe, bounded by
// the prober.
func (c *Client) Poll(ctx context.Context) Outcome {
	c.mu.Lock()
	out := c.poll(ctx)
	c.mu.Unlock()
	c.flush()

	if out != OutcomeNone {
		metrics.PollOutcomes.WithLabelValues(out.String()).Inc()
	}
	return out
}

func (c *Client) poll(ctx context.Context) Outcome {
	if c.ls.State == StateRelease {
		return OutcomeNone
	}

	if c.tr.Status() != transport.StatusOpen {
		if err := c.tr.Open(dhcpv4.ClientPort); err != nil {
			metrics.SocketOpens.WithLabelValues("error").Inc()
			c.logger.Error("opening client socket", "port", dhcpv4.ClientPort, "error", err)
			return OutcomeError
		}
		metrics.SocketOpens.WithLabelValues("ok").Inc()
		c.logger.Debug("client socket opened", "port", dhcpv4.ClientPort)
	}

	c.ls.ElapsedSeconds = c.clock.Seconds() - c.ls.TimerBase

	var msgType dhcpv4.MessageType
	if c.tr.PendingReceiveLength() > 0 {
		n, src, err := c.tr.ReceiveFrom(c.rx[:])
		switch {
		case err == nil:
			msgType = c.parseMessage(c.rx[:n], src)
		case errors.Is(err, transport.ErrNoData):
		default:
			c.logger.Warn("receive failed", "error", err)
		}
	}
	defer func() { c.hasPending = false }()

	switch c.ls.State {
	case StateReady:
		return c.startDiscovery()

	case StateDiscover:
		if msgType == dhcpv4.MessageTypeOffer {
			return c.handleOffer()
		}
		return c.checkTimeout()

	case StateRequest:
		switch msgType {
		case dhcpv4.MessageTypeAck:
			return c.handleAck(ctx)
		case dhcpv4.MessageTypeNak:
			return c.handleNak()
		}
		return c.checkTimeout()

	case StateLeased:
		return c.checkRenewal()

	case StateRerequest:
		switch msgType {
		case dhcpv4.MessageTypeAck:
			return c.handleRenewAck()
		case dhcpv4.MessageTypeNak:
			return c.handleNak()
		}
		return c.checkTimeout()
	}
	return OutcomeNone
}

// startDiscovery abandons whatever the client held and broadcasts a fresh
// DISCOVER under a new transaction id.
func (c *Client) startDiscovery() Outcome {
	if c.started {
		c.ls.XID++
	}
	c.started = true

	c.unpinServer()
	c.clearLease()
	c.resetTimer()
	c.setState(StateDiscover)

	if err := c.sendDiscover(); err != nil {
		c.logger.Error("discover failed", "xid", xidString(c.ls.XID), "error", err)
		return OutcomeError
	}
	c.logger.Info("discovering", "xid", xidString(c.ls.XID), "hostname", c.hostname)
	return OutcomeNone
}

// checkTimeout retransmits for the current state once the wait expires, and
// restarts discovery when the retries are used up.
func (c *Client) checkTimeout() Outcome {
	if c.ls.ElapsedSeconds <= c.ls.NextDeadline {
		return OutcomeNone
	}

	state := c.ls.State
	if c.ls.RetryCount >= c.cfg.MaxRetries {
		c.logger.Warn("no reply from server, restarting discovery",
			"state", state.String(),
			"xid", xidString(c.ls.XID),
			"retries", c.ls.RetryCount)
		c.notify(NoticeTimeout, "")
		if c.startDiscovery() == OutcomeError {
			return OutcomeError
		}
		return OutcomeTimeout
	}

	c.ls.RetryCount++
	c.ls.TimerBase = c.clock.Seconds()
	c.ls.ElapsedSeconds = 0
	c.ls.NextDeadline = c.retryWait
	metrics.Retransmissions.WithLabelValues(state.String()).Inc()

	var err error
	switch state {
	case StateDiscover:
		err = c.sendDiscover()
	case StateRequest:
		err = c.sendSelectingRequest()
	case StateRerequest:
		err = c.sendRenewalRequest()
	}
	if err != nil {
		c.logger.Error("retransmit failed", "state", state.String(), "error", err)
		return OutcomeError
	}
	c.logger.Debug("retransmitted",
		"state", state.String(),
		"xid", xidString(c.ls.XID),
		"retry", c.ls.RetryCount)
	return OutcomeNone
}

// handleOffer takes the first OFFER, pins its server and requests the address.
func (c *Client) handleOffer() Outcome {
	r := c.pending
	c.commit()
	c.ls.ServerRealAddress = cloneIP(c.pendingSrc.IP.To4())
	if !dhcpv4.IsZeroIP(r.ServerID) {
		c.ls.ServerIdentifier = r.ServerID
	} else {
		c.ls.ServerIdentifier = cloneIP(c.ls.ServerRealAddress)
	}

	c.logger.Info("offer received",
		"ip", ipString(c.ls.OfferedAddress),
		"server_id", ipString(c.ls.ServerIdentifier),
		"lease_seconds", c.ls.LeaseSeconds)

	c.resetTimer()
	c.setState(StateRequest)
	if err := c.sendSelectingRequest(); err != nil {
		c.logger.Error("request failed", "xid", xidString(c.ls.XID), "error", err)
		return OutcomeError
	}
	return OutcomeNone
}

// handleAck probes the acknowledged address and either binds it or declines
// it and starts over.
func (c *Client) handleAck(ctx context.Context) Outcome {
	c.commit()

	if c.probe(ctx) {
		method := c.prober.Method()
		c.logger.Warn("offered address in use, declining",
			"ip", ipString(c.ls.OfferedAddress),
			"method", method,
			"server_id", ipString(c.ls.ServerIdentifier))
		if err := c.sendDecline(); err != nil {
			c.logger.Error("decline failed", "error", err)
		} else {
			metrics.LeaseOperations.WithLabelValues("decline").Inc()
		}
		c.notify(NoticeConflict, method)
		if c.startDiscovery() == OutcomeError {
			return OutcomeError
		}
		return OutcomeConflict
	}

	c.resetTimer()
	c.setState(StateLeased)
	metrics.LeaseOperations.WithLabelValues("bind").Inc()
	metrics.LeaseSeconds.Set(float64(c.ls.LeaseSeconds))
	c.logger.Info("lease bound",
		"ip", ipString(c.ls.OfferedAddress),
		"subnet_mask", ipString(c.ls.SubnetMask),
		"router", ipString(c.ls.Gateway),
		"dns_server", ipString(c.ls.DNSServer),
		"server_id", ipString(c.ls.ServerIdentifier),
		"lease_seconds", c.ls.LeaseSeconds)
	c.notify(NoticeBound, "")
	return OutcomeUpdate
}

// probe reports a conflict on the committed address. Probe errors count as
// clear so a broken prober cannot keep the client from binding.
func (c *Client) probe(ctx context.Context) bool {
	if c.prober == nil {
		return false
	}
	inUse, err := c.prober.Probe(ctx, c.ls.OfferedAddress)
	if err != nil {
		c.logger.Warn("conflict probe failed, assuming address is free",
			"ip", ipString(c.ls.OfferedAddress),
			"error", err)
		return false
	}
	return inUse
}

// checkRenewal starts renewing once half the lease has elapsed.
func (c *Client) checkRenewal() Outcome {
	if c.ls.LeaseSeconds == dhcpv4.InfiniteLease {
		return OutcomeNone
	}
	if c.ls.ElapsedSeconds <= uint64(c.ls.LeaseSeconds/2) {
		return OutcomeNone
	}

	c.ls.PreviousAddress = cloneIP(c.ls.OfferedAddress)
	c.ls.XID++
	c.resetTimer()
	c.setState(StateRerequest)

	if err := c.sendRenewalRequest(); err != nil {
		c.logger.Error("renewal request failed", "xid", xidString(c.ls.XID), "error", err)
		return OutcomeError
	}
	c.logger.Info("renewing lease",
		"ip", ipString(c.ls.OfferedAddress),
		"server_id", ipString(c.ls.ServerIdentifier),
		"xid", xidString(c.ls.XID))
	return OutcomeNone
}

// handleRenewAck rebinds. Only an address change needs the caller's attention.
func (c *Client) handleRenewAck() Outcome {
	c.commit()
	c.resetTimer()
	c.setState(StateLeased)
	metrics.LeaseOperations.WithLabelValues("renew").Inc()
	metrics.LeaseSeconds.Set(float64(c.ls.LeaseSeconds))

	if !c.ls.OfferedAddress.Equal(c.ls.PreviousAddress) {
		c.logger.Warn("lease address changed on renewal",
			"old_ip", ipString(c.ls.PreviousAddress),
			"ip", ipString(c.ls.OfferedAddress),
			"lease_seconds", c.ls.LeaseSeconds)
		c.notify(NoticeChanged, "")
		return OutcomeUpdate
	}

	c.logger.Info("lease renewed",
		"ip", ipString(c.ls.OfferedAddress),
		"lease_seconds", c.ls.LeaseSeconds)
	c.notify(NoticeRenewed, "")
	return OutcomeNone
}

func (c *Client) handleNak() Outcome {
	c.logger.Warn("server refused request, restarting discovery",
		"state", c.ls.State.String(),
		"ip", ipString(c.ls.OfferedAddress),
		"server_id", ipString(c.ls.ServerIdentifier))
	metrics.LeaseOperations.WithLabelValues("nak").Inc()
	c.notify(NoticeNak, "")
	return c.startDiscovery()
}
