// Package hostname builds the host name a client announces in option 12.
// The name is "<deviceId>-<MAC suffix>" and must be a single valid DNS label:
// servers register it in DNS, and operators type device IDs into config by hand.
package hostname

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

// DefaultDeviceID is used when the configured device ID is empty or has no
// usable characters.
const DefaultDeviceID = "athena"

// maxLabel is the DNS label limit (RFC 1035 §2.3.4).
const maxLabel = 63

// Build returns "<deviceID>-<XXXXXX>" where XXXXXX is the uppercase hex of the
// last three MAC bytes. The device ID is cleaned into a DNS label first and
// shortened so the whole name fits in one label.
func Build(deviceID string, mac net.HardwareAddr) (string, error) {
	if len(mac) < 3 {
		return "", fmt.Errorf("hardware address %q too short for a host name suffix", mac)
	}
	tail := mac[len(mac)-3:]
	suffix := fmt.Sprintf("%02X%02X%02X", tail[0], tail[1], tail[2])

	id := Sanitise(deviceID)
	if id == "" {
		id = DefaultDeviceID
	}
	if limit := maxLabel - 1 - len(suffix); len(id) > limit {
		id = strings.TrimRight(id[:limit], "-")
	}

	name := id + "-" + suffix
	if _, ok := dns.IsDomainName(name); !ok {
		return "", fmt.Errorf("host name %q is not a valid DNS name", name)
	}
	return name, nil
}

// Sanitise reduces s to a DNS label: letters, digits and single interior
// hyphens. Case is preserved.
func Sanitise(s string) string {
	return strings.Trim(collapseHyphens(stripInvalidLabel(s)), "-")
}

// stripInvalidLabel removes characters not valid in a DNS label (RFC 952/1123).
// Valid: a-z, A-Z, 0-9, hyphen. Dots are dropped: the name is one label.
func stripInvalidLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range []byte(s) {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// collapseHyphens collapses runs of hyphens into one.
func collapseHyphens(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' && prev == '-' {
			continue
		}
		b.WriteByte(c)
		prev = c
	}
	return b.String()
}
