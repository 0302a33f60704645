package dhcpv4

import (
	"net"
	"testing"
)

func TestIPToUint32(t *testing.T) {
	tests := []struct {
		ip   net.IP
		want uint32
	}{
		{net.IPv4(0, 0, 0, 0), 0},
		{net.IPv4(255, 255, 255, 255), 0xFFFFFFFF},
		{net.IPv4(192, 168, 1, 1), 0xC0A80101},
		{net.IPv4(10, 0, 0, 1), 0x0A000001},
		{net.ParseIP("2001:db8::1"), 0},
	}
	for _, tt := range tests {
		got := IPToUint32(tt.ip)
		if got != tt.want {
			t.Errorf("IPToUint32(%s) = 0x%08X, want 0x%08X", tt.ip, got, tt.want)
		}
	}
}

func TestUint32ToIP(t *testing.T) {
	got := Uint32ToIP(0xC0A80132)
	if len(got) != 4 {
		t.Fatalf("Uint32ToIP length = %d, want 4", len(got))
	}
	if !got.Equal(net.IPv4(192, 168, 1, 50)) {
		t.Errorf("Uint32ToIP(0xC0A80132) = %s, want 192.168.1.50", got)
	}
}

func TestIPToBytes(t *testing.T) {
	b := IPToBytes(net.IPv4(192, 168, 1, 1))
	if len(b) != 4 || b[0] != 192 || b[1] != 168 || b[2] != 1 || b[3] != 1 {
		t.Errorf("IPToBytes = %v, want [192 168 1 1]", b)
	}

	b = IPToBytes(nil)
	if len(b) != 4 || b[0]|b[1]|b[2]|b[3] != 0 {
		t.Errorf("IPToBytes(nil) = %v, want zeros", b)
	}
}

func TestBytesToIPCopies(t *testing.T) {
	src := []byte{10, 0, 0, 1}
	ip := BytesToIP(src)
	if !ip.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Fatalf("BytesToIP = %s, want 10.0.0.1", ip)
	}
	src[3] = 99
	if ip[3] != 1 {
		t.Error("BytesToIP result aliases its input")
	}

	if BytesToIP([]byte{1, 2, 3}) != nil {
		t.Error("expected nil for short slice")
	}
}

func TestUint32Bytes(t *testing.T) {
	b := Uint32ToBytes(86400)
	if len(b) != 4 || b[0] != 0 || b[1] != 1 || b[2] != 0x51 || b[3] != 0x80 {
		t.Errorf("Uint32ToBytes(86400) = %v", b)
	}
	v, err := BytesToUint32(b)
	if err != nil {
		t.Fatalf("BytesToUint32: %v", err)
	}
	if v != 86400 {
		t.Errorf("BytesToUint32 = %d, want 86400", v)
	}
	if _, err := BytesToUint32([]byte{1, 2}); err == nil {
		t.Error("expected error for short uint32")
	}
}

func TestUint16Bytes(t *testing.T) {
	b := Uint16ToBytes(FlagBroadcast)
	if b[0] != 0x80 || b[1] != 0x00 {
		t.Errorf("Uint16ToBytes(0x8000) = %v", b)
	}
	v, err := BytesToUint16(b)
	if err != nil || v != FlagBroadcast {
		t.Errorf("BytesToUint16 = %d, %v", v, err)
	}
	if _, err := BytesToUint16([]byte{1}); err == nil {
		t.Error("expected error for short uint16")
	}
}

func TestIsZeroIP(t *testing.T) {
	if !IsZeroIP(nil) {
		t.Error("nil should be zero")
	}
	if !IsZeroIP(net.IPv4(0, 0, 0, 0)) {
		t.Error("0.0.0.0 should be zero")
	}
	if IsZeroIP(net.IPv4(192, 168, 1, 1)) {
		t.Error("192.168.1.1 should not be zero")
	}
}

func TestParseMAC(t *testing.T) {
	mac, err := ParseMAC("00:08:dc:11:11:11")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	if FormatMAC(mac) != "00:08:dc:11:11:11" {
		t.Errorf("FormatMAC = %q", FormatMAC(mac))
	}
	if _, err := ParseMAC("00:00:00:00:fe:80:00:00:00:00:00:00:02:00:5e:10:00:00:00:01"); err == nil {
		t.Error("expected error for 20-byte hardware address")
	}
	if _, err := ParseMAC("nope"); err == nil {
		t.Error("expected error for garbage")
	}
}
