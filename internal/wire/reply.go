package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// Reply is the subset of a server message the client acts on. All addresses
// are copies and stay valid after the receive buffer is reused.
type Reply struct {
	Op          dhcpv4.OpCode
	XID         uint32
	CHAddr      net.HardwareAddr
	YIAddr      net.IP
	MessageType dhcpv4.MessageType // 0 when option 53 is absent

	SubnetMask   net.IP
	Router       net.IP // first router in option 3
	DNSServer    net.IP // first server in option 6
	ServerID     net.IP
	LeaseSeconds uint32
	HasLeaseTime bool
}

// ParseReply decodes a message received from a server. Options with a length
// that does not fit their type are ignored; unknown options are skipped.
func ParseReply(data []byte) (Reply, error) {
	if len(data) < dhcpv4.OptionsOffset {
		return Reply{}, fmt.Errorf("%d bytes: %w", len(data), ErrShortPacket)
	}
	if !bytes.Equal(data[offCookie:dhcpv4.OptionsOffset], dhcpv4.MagicCookie) {
		return Reply{}, fmt.Errorf("%v: %w", data[offCookie:dhcpv4.OptionsOffset], ErrBadCookie)
	}

	r := Reply{
		Op:     dhcpv4.OpCode(data[offOp]),
		XID:    binary.BigEndian.Uint32(data[offXID:]),
		YIAddr: dhcpv4.BytesToIP(data[offYIAddr:offSIAddr]),
	}

	hlen := int(data[offHLen])
	if hlen > dhcpv4.CHAddrSize {
		hlen = dhcpv4.CHAddrSize
	}
	r.CHAddr = make(net.HardwareAddr, hlen)
	copy(r.CHAddr, data[offCHAddr:offCHAddr+hlen])

	rd := NewOptionReader(data[dhcpv4.OptionsOffset:])
	for {
		code, value, ok := rd.Next()
		if !ok {
			break
		}
		switch code {
		case dhcpv4.OptionDHCPMessageType:
			if len(value) == 1 {
				r.MessageType = dhcpv4.MessageType(value[0])
			}
		case dhcpv4.OptionSubnetMask:
			if len(value) == 4 {
				r.SubnetMask = dhcpv4.BytesToIP(value)
			}
		case dhcpv4.OptionRouter:
			if len(value) >= 4 && len(value)%4 == 0 {
				r.Router = dhcpv4.BytesToIP(value[:4])
			}
		case dhcpv4.OptionDomainNameServer:
			if len(value) >= 4 && len(value)%4 == 0 {
				r.DNSServer = dhcpv4.BytesToIP(value[:4])
			}
		case dhcpv4.OptionServerIdentifier:
			if len(value) == 4 {
				r.ServerID = dhcpv4.BytesToIP(value)
			}
		case dhcpv4.OptionIPLeaseTime:
			if v, err := dhcpv4.BytesToUint32(value); err == nil {
				r.LeaseSeconds = v
				r.HasLeaseTime = true
			}
		}
	}

	return r, nil
}
