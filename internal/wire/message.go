package wire

import (
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// Params carries what the encoders need from the client state.
type Params struct {
	XID      uint32
	MAC      net.HardwareAddr
	Hostname string

	// ClientAddr goes into ciaddr for renewals and releases.
	ClientAddr net.IP
	// RequestedAddr is option 50 (selecting REQUEST, DECLINE).
	RequestedAddr net.IP
	// ServerID is option 54 (selecting REQUEST, RELEASE, DECLINE).
	ServerID net.IP

	// Renewal selects the unicast REQUEST form used from LEASED onwards.
	Renewal bool
}

// clientID is option 61: hardware type followed by the MAC.
func clientID(mac net.HardwareAddr) []byte {
	id := make([]byte, 0, 1+len(mac))
	id = append(id, byte(dhcpv4.HardwareTypeEthernet))
	return append(id, mac...)
}

func parameterRequestList() []byte {
	prl := make([]byte, len(dhcpv4.DefaultParameterRequestList))
	for i, code := range dhcpv4.DefaultParameterRequestList {
		prl[i] = byte(code)
	}
	return prl
}

func putIdentity(w *OptionWriter, p Params) {
	w.Put(dhcpv4.OptionClientIdentifier, clientID(p.MAC))
	if p.Hostname != "" {
		w.Put(dhcpv4.OptionHostname, []byte(p.Hostname))
	}
}

// EncodeDiscover writes a broadcast DHCPDISCOVER (RFC 2131 §4.4.1) and returns
// the datagram length.
func EncodeDiscover(b *Buffer, p Params) (int, error) {
	b.header(p.XID, dhcpv4.FlagBroadcast, nil, p.MAC)

	w := b.options()
	w.PutByte(dhcpv4.OptionDHCPMessageType, byte(dhcpv4.MessageTypeDiscover))
	putIdentity(w, p)
	w.Put(dhcpv4.OptionParameterRequestList, parameterRequestList())
	return w.Finish()
}

// EncodeRequest writes a DHCPREQUEST. In the selecting form it is broadcast
// with options 50 and 54; in the renewal form ciaddr carries the leased address
// and neither option is present (RFC 2131 §4.3.2).
func EncodeRequest(b *Buffer, p Params) (int, error) {
	if p.Renewal {
		b.header(p.XID, 0, p.ClientAddr, p.MAC)
	} else {
		b.header(p.XID, dhcpv4.FlagBroadcast, nil, p.MAC)
	}

	w := b.options()
	w.PutByte(dhcpv4.OptionDHCPMessageType, byte(dhcpv4.MessageTypeRequest))
	putIdentity(w, p)
	if !p.Renewal {
		w.PutIP(dhcpv4.OptionRequestedIP, p.RequestedAddr)
		w.PutIP(dhcpv4.OptionServerIdentifier, p.ServerID)
	}
	w.Put(dhcpv4.OptionParameterRequestList, parameterRequestList())
	return w.Finish()
}

// EncodeReleaseOrDecline writes a DHCPRELEASE or, when decline is set, a
// DHCPDECLINE for RequestedAddr (RFC 2131 §4.4.4, §4.4.6).
func EncodeReleaseOrDecline(b *Buffer, p Params, decline bool) (int, error) {
	msgType := dhcpv4.MessageTypeRelease
	ciaddr := p.ClientAddr
	if decline {
		msgType = dhcpv4.MessageTypeDecline
		ciaddr = nil
	}
	b.header(p.XID, 0, ciaddr, p.MAC)

	w := b.options()
	w.PutByte(dhcpv4.OptionDHCPMessageType, byte(msgType))
	w.Put(dhcpv4.OptionClientIdentifier, clientID(p.MAC))
	if decline {
		w.PutIP(dhcpv4.OptionRequestedIP, p.RequestedAddr)
	}
	w.PutIP(dhcpv4.OptionServerIdentifier, p.ServerID)
	return w.Finish()
}
