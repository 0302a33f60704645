// Package client implements the poll-driven DHCPv4 client state machine.
package client

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/athena-dhcpd/athena-dhcpc/internal/conflict"
	"github.com/athena-dhcpd/athena-dhcpc/internal/hostname"
	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
	"github.com/athena-dhcpd/athena-dhcpc/internal/transport"
	"github.com/athena-dhcpd/athena-dhcpc/internal/wire"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// Defaults for Config fields left at zero.
const (
	DefaultRetryWait  = 10 * time.Second
	DefaultMaxRetries = 2
)

// Config holds the client identity and retry policy.
type Config struct {
	MAC       net.HardwareAddr
	DeviceID  string // hostname prefix, defaults to hostname.DefaultDeviceID
	Interface string // informational, carried into notices and logs

	RetryWait  time.Duration
	MaxRetries int

	// InitialXID seeds the transaction id; zero picks a random one.
	InitialXID uint32
}

// Client is one DHCP client instance bound to one interface. Poll, Release
// and Restart must be called from a single goroutine; State and Lease may be
// read from anywhere.
type Client struct {
	cfg      Config
	hostname string
	tr       transport.Transport
	prober   conflict.Prober
	clock    *Clock
	logger   *slog.Logger

	mu        sync.Mutex
	ls        LeaseState
	started   bool
	retryWait uint64 // seconds
	buf       wire.Buffer
	rx        [dhcpv4.MaxPacketSize]byte

	pending    wire.Reply
	pendingSrc *net.UDPAddr
	hasPending bool

	observers   []Observer
	transitions [][2]State
	notices     []Notice
}

// New creates a client in the READY state. A nil prober disables conflict
// detection. The transport is opened lazily by the first Poll.
func New(cfg Config, tr transport.Transport, prober conflict.Prober, logger *slog.Logger) (*Client, error) {
	if len(cfg.MAC) != 6 {
		return nil, fmt.Errorf("client MAC %q: need 6 bytes", cfg.MAC.String())
	}
	if tr == nil {
		return nil, errors.New("client transport is required")
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = DefaultRetryWait
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = hostname.DefaultDeviceID
	}

	name, err := hostname.Build(cfg.DeviceID, cfg.MAC)
	if err != nil {
		return nil, fmt.Errorf("building hostname: %w", err)
	}

	xid := cfg.InitialXID
	if xid == 0 {
		xid, err = randomXID()
		if err != nil {
			return nil, fmt.Errorf("generating transaction id: %w", err)
		}
	}

	retryWait := uint64(cfg.RetryWait / time.Second)
	if retryWait == 0 {
		retryWait = 1
	}

	c := &Client{
		cfg:       cfg,
		hostname:  name,
		tr:        tr,
		prober:    prober,
		clock:     NewClock(),
		logger:    logger.With("mac", cfg.MAC.String()),
		retryWait: retryWait,
	}
	c.ls.State = StateReady
	c.ls.XID = xid
	c.ls.LeaseSeconds = dhcpv4.InfiniteLease
	metrics.ClientState.Set(float64(StateReady))
	return c, nil
}

func randomXID() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// AddObserver registers o for transitions and notices.
func (c *Client) AddObserver(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// Clock returns the clock Poll measures time against.
func (c *Client) Clock() *Clock {
	return c.clock
}

// Hostname returns the hostname sent in option 12.
func (c *Client) Hostname() string {
	return c.hostname
}

// MAC returns the client hardware address.
func (c *Client) MAC() net.HardwareAddr {
	return c.cfg.MAC
}

// State returns a copy of the negotiation state.
func (c *Client) State() LeaseState {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.ls
	ls.OfferedAddress = cloneIP(ls.OfferedAddress)
	ls.PreviousAddress = cloneIP(ls.PreviousAddress)
	ls.ServerIdentifier = cloneIP(ls.ServerIdentifier)
	ls.ServerRealAddress = cloneIP(ls.ServerRealAddress)
	ls.SubnetMask = cloneIP(ls.SubnetMask)
	ls.Gateway = cloneIP(ls.Gateway)
	ls.DNSServer = cloneIP(ls.DNSServer)
	return ls
}

// Lease returns the current address configuration. Only meaningful after
// Poll returned OutcomeUpdate.
func (c *Client) Lease() Lease {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leaseLocked()
}

func (c *Client) leaseLocked() Lease {
	return Lease{
		Address:      cloneIP(c.ls.OfferedAddress),
		SubnetMask:   cloneIP(c.ls.SubnetMask),
		Gateway:      cloneIP(c.ls.Gateway),
		DNSServer:    cloneIP(c.ls.DNSServer),
		ServerID:     cloneIP(c.ls.ServerIdentifier),
		LeaseSeconds: c.ls.LeaseSeconds,
	}
}

// Restart drops back to READY so the next Poll starts a fresh discovery.
// It is how a client leaves RELEASE.
func (c *Client) Restart() {
	c.mu.Lock()
	c.setState(StateReady)
	c.mu.Unlock()
	c.flush()
}

// Release gives the lease back to the server and parks the client in
// RELEASE, where Poll does nothing until Restart. With no lease held, or no
// open socket, nothing is sent.
func (c *Client) Release() error {
	c.mu.Lock()

	var sendErr error
	if c.ls.State >= StateLeased && c.ls.State != StateRelease && !dhcpv4.IsZeroIP(c.ls.OfferedAddress) {
		if c.tr.Status() == transport.StatusOpen {
			sendErr = c.sendRelease()
			if sendErr == nil {
				metrics.LeaseOperations.WithLabelValues("release").Inc()
				c.logger.Info("lease released",
					"ip", c.ls.OfferedAddress.String(),
					"server_id", ipString(c.ls.ServerIdentifier))
				c.notify(NoticeReleased, "")
			}
		} else {
			c.logger.Warn("socket closed, releasing lease locally only",
				"ip", c.ls.OfferedAddress.String())
		}
	}

	c.clearLease()
	c.unpinServer()
	c.setState(StateRelease)
	c.mu.Unlock()
	c.flush()

	if sendErr != nil {
		return fmt.Errorf("sending DHCPRELEASE: %w", sendErr)
	}
	return nil
}

// Close closes the transport. It does not release the lease.
func (c *Client) Close() error {
	return c.tr.Close()
}

func (c *Client) setState(to State) {
	from := c.ls.State
	if from == to {
		return
	}
	c.ls.State = to
	metrics.ClientState.Set(float64(to))
	metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	c.logger.Debug("state transition", "from", from.String(), "to", to.String(), "xid", xidString(c.ls.XID))
	c.transitions = append(c.transitions, [2]State{from, to})
}

func (c *Client) notify(kind NoticeKind, method string) {
	c.notices = append(c.notices, Notice{
		Kind:            kind,
		Lease:           c.leaseLocked(),
		PreviousAddress: cloneIP(c.ls.PreviousAddress),
		XID:             c.ls.XID,
		State:           c.ls.State,
		Method:          method,
	})
}

// flush delivers queued transitions and notices. Must be called without c.mu.
func (c *Client) flush() {
	c.mu.Lock()
	observers := c.observers
	transitions := c.transitions
	notices := c.notices
	c.transitions = nil
	c.notices = nil
	c.mu.Unlock()

	for _, o := range observers {
		for _, t := range transitions {
			o.OnTransition(t[0], t[1])
		}
		for _, n := range notices {
			o.OnNotice(n)
		}
	}
}

func (c *Client) resetTimer() {
	c.ls.TimerBase = c.clock.Seconds()
	c.ls.ElapsedSeconds = 0
	c.ls.NextDeadline = c.retryWait
	c.ls.RetryCount = 0
}

func (c *Client) clearLease() {
	c.ls.OfferedAddress = nil
	c.ls.SubnetMask = nil
	c.ls.Gateway = nil
	c.ls.DNSServer = nil
	c.ls.LeaseSeconds = dhcpv4.InfiniteLease
	metrics.LeaseSeconds.Set(0)
}

func (c *Client) unpinServer() {
	c.ls.ServerIdentifier = nil
	c.ls.ServerRealAddress = nil
}

func (c *Client) serverPinned() bool {
	return !dhcpv4.IsZeroIP(c.ls.ServerIdentifier) || !dhcpv4.IsZeroIP(c.ls.ServerRealAddress)
}

func cloneIP(ip net.IP) net.IP {
	if ip == nil {
		return nil
	}
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func xidString(xid uint32) string {
	return fmt.Sprintf("0x%08x", xid)
}
