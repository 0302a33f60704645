package wire

import (
	"fmt"
	"net"

	"github.com/athena-dhcpd/athena-dhcpc/pkg/dhcpv4"
)

// OptionWriter appends TLV options to a fixed options area. It always keeps one
// byte free for the end tag. The first failure is sticky: later writes are
// no-ops and Finish reports it.
type OptionWriter struct {
	area []byte
	pos  int
	err  error
}

// NewOptionWriter returns a writer over area, which starts right after the
// magic cookie.
func NewOptionWriter(area []byte) *OptionWriter {
	return &OptionWriter{area: area}
}

// Put writes one option.
func (w *OptionWriter) Put(code dhcpv4.OptionCode, value []byte) {
	if w.err != nil {
		return
	}
	if len(value) > dhcpv4.MaxOptionValue {
		w.err = fmt.Errorf("option %d: value length %d exceeds %d", code, len(value), dhcpv4.MaxOptionValue)
		return
	}
	// code + length + value, plus the end tag still to come
	if w.pos+2+len(value)+1 > len(w.area) {
		w.err = fmt.Errorf("option %d: %w", code, ErrBufferFull)
		return
	}
	w.area[w.pos] = byte(code)
	w.area[w.pos+1] = byte(len(value))
	copy(w.area[w.pos+2:], value)
	w.pos += 2 + len(value)
}

// PutByte writes a single-byte option.
func (w *OptionWriter) PutByte(code dhcpv4.OptionCode, v byte) {
	w.Put(code, []byte{v})
}

// PutIP writes a 4-byte address option.
func (w *OptionWriter) PutIP(code dhcpv4.OptionCode, ip net.IP) {
	w.Put(code, dhcpv4.IPToBytes(ip))
}

// PutUint32 writes a big-endian 32-bit option.
func (w *OptionWriter) PutUint32(code dhcpv4.OptionCode, v uint32) {
	w.Put(code, dhcpv4.Uint32ToBytes(v))
}

// Len returns the number of option bytes written so far.
func (w *OptionWriter) Len() int {
	return w.pos
}

// Finish writes the end tag and returns the datagram length, counting the
// header and cookie and padded up to the BOOTP minimum.
func (w *OptionWriter) Finish() (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.area[w.pos] = byte(dhcpv4.OptionEnd)
	w.pos++

	n := dhcpv4.OptionsOffset + w.pos
	if n < dhcpv4.MinPacketSize {
		n = dhcpv4.MinPacketSize
	}
	return n, nil
}

// OptionReader walks TLV options with an explicit position and remaining
// length. It never reads past the end of its data.
type OptionReader struct {
	data []byte
	pos  int
}

// NewOptionReader returns a reader over the options area of a message.
func NewOptionReader(data []byte) *OptionReader {
	return &OptionReader{data: data}
}

// Remaining returns the number of unread bytes.
func (r *OptionReader) Remaining() int {
	return len(r.data) - r.pos
}

// Next returns the next option. Pad tags are skipped. It reports false at the
// end tag, at a truncated option, or when the data runs out. The value aliases
// the underlying data.
func (r *OptionReader) Next() (dhcpv4.OptionCode, []byte, bool) {
	for r.pos < len(r.data) {
		code := dhcpv4.OptionCode(r.data[r.pos])
		r.pos++

		switch code {
		case dhcpv4.OptionPad:
			continue
		case dhcpv4.OptionEnd:
			r.pos = len(r.data)
			return 0, nil, false
		}

		if r.pos >= len(r.data) {
			return 0, nil, false
		}
		length := int(r.data[r.pos])
		r.pos++
		if length > r.Remaining() {
			r.pos = len(r.data)
			return 0, nil, false
		}

		value := r.data[r.pos : r.pos+length]
		r.pos += length
		return code, value, true
	}
	return 0, nil, false
}
