// Package transport provides the non-blocking UDP socket the DHCP client polls.
package transport

import (
	"errors"
	"net"
)

// Sentinel errors.
var (
	// ErrNoData means no datagram is waiting; it is not a failure.
	ErrNoData = errors.New("no datagram pending")
	// ErrSendTimeout means a send did not complete before its deadline.
	ErrSendTimeout = errors.New("send timed out")
	// ErrClosed means the socket is not open.
	ErrClosed = errors.New("socket closed")
)

// Status is the socket state as seen by the client.
type Status int

const (
	StatusClosed Status = iota
	StatusOpen
)

func (s Status) String() string {
	if s == StatusOpen {
		return "open"
	}
	return "closed"
}

// Transport is the datagram socket the client state machine drives.
// ReceiveFrom never blocks.
type Transport interface {
	Open(localPort int) error
	Status() Status
	SendTo(b []byte, dst *net.UDPAddr) (int, error)
	ReceiveFrom(b []byte) (int, *net.UDPAddr, error)
	PendingReceiveLength() int
	Close() error
}
