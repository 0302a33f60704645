package client

import (
	"time"

	"github.com/athena-dhcpd/athena-dhcpc/internal/events"
)

var noticeEvents = map[NoticeKind]events.EventType{
	NoticeBound:    events.EventLeaseBound,
	NoticeRenewed:  events.EventLeaseRenewed,
	NoticeChanged:  events.EventLeaseChanged,
	NoticeTimeout:  events.EventLeaseTimeout,
	NoticeNak:      events.EventLeaseNak,
	NoticeConflict: events.EventConflictDetected,
	NoticeReleased: events.EventLeaseReleased,
}

// EventPublisher is an Observer that turns notices into bus events for the
// hook dispatcher and the journal.
type EventPublisher struct {
	bus    *events.Bus
	client events.ClientData
}

// NewEventPublisher creates a publisher tagging events with c's identity.
func NewEventPublisher(bus *events.Bus, c *Client) *EventPublisher {
	return &EventPublisher{
		bus: bus,
		client: events.ClientData{
			MAC:       c.MAC().String(),
			Interface: c.cfg.Interface,
			Hostname:  c.Hostname(),
		},
	}
}

// OnTransition is a no-op; transitions are covered by metrics and logs.
func (p *EventPublisher) OnTransition(_, _ State) {}

// OnNotice publishes the event for n.
func (p *EventPublisher) OnNotice(n Notice) {
	evtType, ok := noticeEvents[n.Kind]
	if !ok {
		return
	}
	client := p.client
	evt := events.Event{
		Type:      evtType,
		Timestamp: time.Now(),
		Client:    &client,
	}

	switch n.Kind {
	case NoticeConflict:
		evt.Conflict = &events.ConflictData{
			IP:              n.Lease.Address,
			DetectionMethod: n.Method,
			ServerID:        n.Lease.ServerID,
		}
		evt.Reason = "address in use"
	case NoticeTimeout:
		evt.Reason = "no reply in " + n.State.String()
		evt.Lease = leaseData(n)
	case NoticeNak:
		evt.Reason = "server sent DHCPNAK in " + n.State.String()
		evt.Lease = leaseData(n)
	default:
		evt.Lease = leaseData(n)
	}

	p.bus.Publish(evt)
}

func leaseData(n Notice) *events.LeaseData {
	ld := &events.LeaseData{
		IP:           n.Lease.Address,
		SubnetMask:   n.Lease.SubnetMask,
		Router:       n.Lease.Gateway,
		DNSServer:    n.Lease.DNSServer,
		ServerID:     n.Lease.ServerID,
		LeaseSeconds: n.Lease.LeaseSeconds,
		XID:          n.XID,
	}
	if n.Kind == NoticeChanged {
		ld.OldIP = n.PreviousAddress
	}
	return ld
}
