// Package wire encodes client DHCPv4 messages into a fixed reusable buffer and
// decodes server replies (RFC 2131 §2, RFC 2132).
package wire

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// Sentinel errors returned by the codec.
var (
	ErrShortPacket = errors.New("packet shorter than BOOTP header and magic cookie")
	ErrBadCookie   = errors.New("invalid DHCP magic cookie")
	ErrBufferFull  = errors.New("options area full")
)

// BOOTP header field offsets (RFC 2131 §2, figure 1).
const (
	offOp     = 0
	offHType  = 1
	offHLen   = 2
	offHops   = 3
	offXID    = 4
	offSecs   = 8
	offFlags  = 10
	offCIAddr = 12
	offYIAddr = 16
	offSIAddr = 20
	offGIAddr = 24
	offCHAddr = 28
	offSName  = 44
	offFile   = 108
	offCookie = 236
)

// Buffer holds one full DHCP message. A client owns exactly one and reuses it
// for every message it sends and receives.
type Buffer [dhcpv4.MessageSize]byte

// Bytes returns the whole buffer as a slice, suitable for receiving into.
func (b *Buffer) Bytes() []byte {
	return b[:]
}

// header zeroes the buffer and writes a BOOTREQUEST header and the magic cookie.
func (b *Buffer) header(xid uint32, flags uint16, ciaddr net.IP, mac net.HardwareAddr) {
	*b = Buffer{}
	b[offOp] = byte(dhcpv4.OpCodeBootRequest)
	b[offHType] = byte(dhcpv4.HardwareTypeEthernet)
	b[offHLen] = byte(len(mac))
	b[offHops] = 0
	binary.BigEndian.PutUint32(b[offXID:], xid)
	binary.BigEndian.PutUint16(b[offSecs:], 0)
	binary.BigEndian.PutUint16(b[offFlags:], flags)
	copy(b[offCIAddr:offYIAddr], dhcpv4.IPToBytes(ciaddr))
	copy(b[offCHAddr:offSName], mac)
	copy(b[offCookie:dhcpv4.OptionsOffset], dhcpv4.MagicCookie)
}

// options returns a writer positioned at the first option.
func (b *Buffer) options() *OptionWriter {
	return NewOptionWriter(b[dhcpv4.OptionsOffset:])
}
