package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/athena-dhcpd/athena-dhcpc/internal/metrics"
	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// DefaultQueueSize is the number of received datagrams held for the poller.
const DefaultQueueSize = 16

// UDPOptions configures a UDP transport.
type UDPOptions struct {
	// Interface binds the socket to one link and drops datagrams that
	// arrive on any other. Empty means all interfaces.
	Interface string
	// ListenAddr is the local address to bind, default 0.0.0.0.
	ListenAddr string
	// QueueSize bounds the receive queue; overflow is dropped.
	QueueSize int
}

type datagram struct {
	data []byte
	src  *net.UDPAddr
}

// UDP is a Transport over a kernel UDP socket. A reader goroutine drains the
// socket into a bounded queue so ReceiveFrom can return immediately.
type UDP struct {
	opts   UDPOptions
	logger *slog.Logger

	mu      sync.Mutex
	conn    *ipv4.PacketConn
	ifIndex int
	queue   []datagram
	wg      sync.WaitGroup
}

// NewUDP creates a closed UDP transport.
func NewUDP(opts UDPOptions, logger *slog.Logger) *UDP {
	if opts.ListenAddr == "" {
		opts.ListenAddr = "0.0.0.0"
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &UDP{opts: opts, logger: logger}
}

// Open binds the socket to localPort and starts the reader. Opening an open
// socket is a no-op.
func (u *UDP) Open(localPort int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn != nil {
		return nil
	}

	ifIndex := 0
	if u.opts.Interface != "" {
		ifi, err := net.InterfaceByName(u.opts.Interface)
		if err != nil {
			metrics.SocketOpens.WithLabelValues("error").Inc()
			return fmt.Errorf("looking up interface %s: %w", u.opts.Interface, err)
		}
		ifIndex = ifi.Index
	}

	lc := net.ListenConfig{Control: control(u.opts.Interface)}
	addr := net.JoinHostPort(u.opts.ListenAddr, strconv.Itoa(localPort))
	pc, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		metrics.SocketOpens.WithLabelValues("error").Inc()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	conn := ipv4.NewPacketConn(pc)
	if ifIndex > 0 {
		if err := conn.SetControlMessage(ipv4.FlagInterface, true); err != nil {
			// Without control messages the device binding alone filters traffic.
			u.logger.Debug("interface control messages unavailable",
				"interface", u.opts.Interface,
				"error", err)
			ifIndex = 0
		}
	}

	u.conn = conn
	u.ifIndex = ifIndex
	u.queue = u.queue[:0]
	metrics.SocketOpens.WithLabelValues("success").Inc()

	u.wg.Add(1)
	go u.readLoop(conn, ifIndex)

	u.logger.Info("DHCP client socket open",
		"address", pc.LocalAddr().String(),
		"interface", u.opts.Interface)
	return nil
}

// Status reports whether the socket is open.
func (u *UDP) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return StatusClosed
	}
	return StatusOpen
}

// LocalAddr returns the bound address, or nil when closed.
func (u *UDP) LocalAddr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// SendTo sends b to dst without a deadline.
func (u *UDP) SendTo(b []byte, dst *net.UDPAddr) (int, error) {
	return u.SendToContext(context.Background(), b, dst)
}

// SendToContext sends b to dst. The context deadline becomes the write
// deadline; missing it returns ErrSendTimeout.
func (u *UDP) SendToContext(ctx context.Context, b []byte, dst *net.UDPAddr) (int, error) {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return 0, ErrClosed
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return 0, fmt.Errorf("setting write deadline: %w", err)
	}

	n, err := conn.WriteTo(b, nil, dst)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, fmt.Errorf("sending to %s: %w", dst, ErrSendTimeout)
		}
		return n, fmt.Errorf("sending to %s: %w", dst, err)
	}
	return n, nil
}

// ReceiveFrom copies the oldest queued datagram into b. It returns ErrNoData
// when nothing is queued and never blocks.
func (u *UDP) ReceiveFrom(b []byte) (int, *net.UDPAddr, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		return 0, nil, ErrClosed
	}
	if len(u.queue) == 0 {
		return 0, nil, ErrNoData
	}

	d := u.queue[0]
	u.queue[0] = datagram{}
	u.queue = u.queue[1:]
	return copy(b, d.data), d.src, nil
}

// PendingReceiveLength returns the size of the next queued datagram, 0 if none.
func (u *UDP) PendingReceiveLength() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.queue) == 0 {
		return 0
	}
	return len(u.queue[0].data)
}

// Close closes the socket and waits for the reader to exit.
func (u *UDP) Close() error {
	u.mu.Lock()
	conn := u.conn
	u.conn = nil
	u.queue = nil
	u.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	u.wg.Wait()
	if err != nil {
		return fmt.Errorf("closing socket: %w", err)
	}
	return nil
}

func (u *UDP) readLoop(conn *ipv4.PacketConn, ifIndex int) {
	defer u.wg.Done()

	buf := make([]byte, dhcpv4.MaxPacketSize)
	for {
		n, cm, src, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			u.logger.Debug("socket read error", "error", err)
			// avoid spinning on a persistent error
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if ifIndex > 0 && cm != nil && cm.IfIndex != ifIndex {
			metrics.PacketsDropped.WithLabelValues("wrong_interface").Inc()
			continue
		}

		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		u.enqueue(conn, datagram{data: data, src: udpSrc})
	}
}

func (u *UDP) enqueue(conn *ipv4.PacketConn, d datagram) {
	u.mu.Lock()
	defer u.mu.Unlock()

	// socket was closed or reopened since this datagram was read
	if u.conn != conn {
		return
	}
	if len(u.queue) >= u.opts.QueueSize {
		metrics.ReceiveQueueDrops.Inc()
		u.logger.Debug("receive queue full, dropping datagram",
			"src", d.src.String(),
			"size", len(d.data))
		return
	}
	u.queue = append(u.queue, d)
}
