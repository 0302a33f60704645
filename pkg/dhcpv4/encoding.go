package dhcpv4

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// IPToBytes converts a net.IP to a 4-byte slice. Non-IPv4 input yields 0.0.0.0.
func IPToBytes(ip net.IP) []byte {
	ip4 := ip.To4()
	if ip4 == nil {
		return []byte{0, 0, 0, 0}
	}
	return []byte(ip4)
}

// BytesToIP copies a 4-byte slice into a new 4-byte net.IP.
// The result never aliases b, so it is safe to keep after b is reused.
func BytesToIP(b []byte) net.IP {
	if len(b) != 4 {
		return nil
	}
	ip := make(net.IP, 4)
	copy(ip, b)
	return ip
}

// Uint16ToBytes converts a uint16 to 2 bytes (big-endian).
func Uint16ToBytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// BytesToUint16 converts 2 bytes to uint16 (big-endian).
func BytesToUint16(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("invalid uint16 length %d: expected 2", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32ToBytes converts a uint32 to 4 bytes (big-endian).
func Uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// BytesToUint32 converts 4 bytes to uint32 (big-endian).
func BytesToUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("invalid uint32 length %d: expected 4", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// IPToUint32 converts a net.IP to a uint32.
func IPToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip4)
}

// Uint32ToIP converts a uint32 to a 4-byte net.IP.
func Uint32ToIP(n uint32) net.IP {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

// IsZeroIP reports whether ip is nil or 0.0.0.0.
func IsZeroIP(ip net.IP) bool {
	return ip == nil || ip.Equal(net.IPv4zero)
}

// ParseMAC parses a MAC address and requires the 6-byte Ethernet form.
func ParseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, err
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("MAC %q: expected 6 bytes, got %d", s, len(mac))
	}
	return mac, nil
}

// FormatMAC formats bytes as a MAC address string.
func FormatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}
