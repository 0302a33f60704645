// Package events provides the event bus and hook dispatcher for athena-dhcpc.
package events

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// EventType represents a lease lifecycle event.
type EventType string

const (
	EventLeaseBound       EventType = "lease.bound"
	EventLeaseRenewed     EventType = "lease.renewed"
	EventLeaseChanged     EventType = "lease.changed"
	EventLeaseTimeout     EventType = "lease.timeout"
	EventLeaseNak         EventType = "lease.nak"
	EventLeaseReleased    EventType = "lease.released"
	EventConflictDetected EventType = "conflict.detected"
)

// Event is the core event payload passed through the event bus.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Client    *ClientData   `json:"client,omitempty"`
	Lease     *LeaseData    `json:"lease,omitempty"`
	Conflict  *ConflictData `json:"conflict,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// ClientData identifies the client that produced the event.
type ClientData struct {
	MAC       string `json:"mac"`
	Interface string `json:"interface,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
}

// LeaseData carries the address configuration learned from the server.
type LeaseData struct {
	IP           net.IP `json:"ip,omitempty"`
	OldIP        net.IP `json:"old_ip,omitempty"`
	SubnetMask   net.IP `json:"subnet_mask,omitempty"`
	Router       net.IP `json:"router,omitempty"`
	DNSServer    net.IP `json:"dns_server,omitempty"`
	ServerID     net.IP `json:"server_id,omitempty"`
	LeaseSeconds uint32 `json:"lease_seconds"`
	XID          uint32 `json:"xid"`
}

// ConflictData carries conflict information in events.
type ConflictData struct {
	IP              net.IP `json:"ip"`
	DetectionMethod string `json:"detection_method"`
	ServerID        net.IP `json:"server_id,omitempty"`
}

// PrefixLength returns the CIDR prefix length of the subnet mask, or -1 when
// the mask is missing or non-canonical.
func (l *LeaseData) PrefixLength() int {
	mask := l.SubnetMask.To4()
	if mask == nil {
		return -1
	}
	ones, bits := net.IPMask(mask).Size()
	if bits == 0 {
		return -1
	}
	return ones
}

// ToEnvVars converts an event to environment variables for script hooks.
func (e *Event) ToEnvVars() map[string]string {
	env := map[string]string{
		"ATHENA_EVENT": string(e.Type),
	}

	if e.Client != nil {
		env["ATHENA_MAC"] = e.Client.MAC
		if e.Client.Interface != "" {
			env["ATHENA_INTERFACE"] = e.Client.Interface
		}
		if e.Client.Hostname != "" {
			env["ATHENA_HOSTNAME"] = e.Client.Hostname
		}
	}

	if e.Lease != nil {
		l := e.Lease
		setIP(env, "ATHENA_IP", l.IP)
		setIP(env, "ATHENA_OLD_IP", l.OldIP)
		setIP(env, "ATHENA_SUBNET_MASK", l.SubnetMask)
		setIP(env, "ATHENA_ROUTER", l.Router)
		setIP(env, "ATHENA_DNS_SERVERS", l.DNSServer)
		setIP(env, "ATHENA_SERVER_ID", l.ServerID)
		if n := l.PrefixLength(); n >= 0 {
			env["ATHENA_PREFIX_LENGTH"] = strconv.Itoa(n)
		}
		if l.LeaseSeconds == 0xFFFFFFFF {
			env["ATHENA_LEASE_SECONDS"] = "infinite"
		} else {
			env["ATHENA_LEASE_SECONDS"] = strconv.FormatUint(uint64(l.LeaseSeconds), 10)
		}
		env["ATHENA_XID"] = fmt.Sprintf("0x%08x", l.XID)
	}

	if e.Conflict != nil {
		setIP(env, "ATHENA_IP", e.Conflict.IP)
		setIP(env, "ATHENA_SERVER_ID", e.Conflict.ServerID)
		env["ATHENA_CONFLICT_METHOD"] = e.Conflict.DetectionMethod
	}

	if e.Reason != "" {
		env["ATHENA_REASON"] = e.Reason
	}

	return env
}

func setIP(env map[string]string, key string, ip net.IP) {
	if ip != nil {
		env[key] = ip.String()
	}
}
