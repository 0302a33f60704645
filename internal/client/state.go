package client

import (
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// State is the client's position in the lease negotiation. The order
// matters: every state from StateLeased up holds (or is renewing) a lease.
type State int

const (
	StateReady State = iota
	StateDiscover
	StateRequest
	StateLeased
	StateRerequest
	StateRelease
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDiscover:
		return "discover"
	case StateRequest:
		return "request"
	case StateLeased:
		return "leased"
	case StateRerequest:
		return "rerequest"
	case StateRelease:
		return "release"
	default:
		return "unknown"
	}
}

// Outcome is what one poll tells the caller.
type Outcome int

const (
	// OutcomeNone means nothing the caller needs to act on.
	OutcomeNone Outcome = iota
	// OutcomeTimeout means retries ran out; discovery restarted. The caller
	// may fall back to a static address.
	OutcomeTimeout
	// OutcomeUpdate means Lease() holds a new configuration to apply.
	OutcomeUpdate
	// OutcomeConflict means the offered address was in use and was declined.
	OutcomeConflict
	// OutcomeError means the transport failed; the next poll retries.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeUpdate:
		return "update"
	case OutcomeConflict:
		return "conflict"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// LeaseState is the full negotiation state. Times are whole seconds from the
// client Clock.
type LeaseState struct {
	State      State
	XID        uint32
	RetryCount int

	TimerBase      uint64
	ElapsedSeconds uint64
	NextDeadline   uint64

	LeaseSeconds    uint32 // dhcpv4.InfiniteLease when the server sent none
	OfferedAddress  net.IP
	PreviousAddress net.IP

	// Pinned on the first accepted OFFER; replies from anywhere else are dropped.
	ServerIdentifier  net.IP
	ServerRealAddress net.IP

	SubnetMask net.IP
	Gateway    net.IP
	DNSServer  net.IP
}

// Lease is the address configuration to apply to the host.
type Lease struct {
	Address      net.IP
	SubnetMask   net.IP
	Gateway      net.IP
	DNSServer    net.IP
	ServerID     net.IP
	LeaseSeconds uint32
}

// Infinite reports whether the lease never expires.
func (l Lease) Infinite() bool {
	return l.LeaseSeconds == dhcpv4.InfiniteLease
}

// NoticeKind names a lease lifecycle event.
type NoticeKind string

const (
	NoticeBound    NoticeKind = "bound"
	NoticeRenewed  NoticeKind = "renewed"
	NoticeChanged  NoticeKind = "changed"
	NoticeTimeout  NoticeKind = "timeout"
	NoticeNak      NoticeKind = "nak"
	NoticeConflict NoticeKind = "conflict"
	NoticeReleased NoticeKind = "released"
)

// Notice describes something that happened to the lease.
type Notice struct {
	Kind            NoticeKind
	Lease           Lease
	PreviousAddress net.IP
	XID             uint32
	State           State  // state the client was in when it happened
	Method          string // probe method, for NoticeConflict
}

// Observer receives state transitions and notices after each poll. Callbacks
// run on the polling goroutine once the client lock is released, so they may
// call State or Lease but should return quickly.
type Observer interface {
	OnTransition(from, to State)
	OnNotice(n Notice)
}
