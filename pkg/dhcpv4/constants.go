// Package dhcpv4 provides constants and encoding helpers for DHCPv4 client messages.
package dhcpv4

import "net"

// DHCP Message Types (RFC 2131 §9.6)
type MessageType byte

const (
	MessageTypeDiscover MessageType = 1 // DHCPDISCOVER
	MessageTypeOffer    MessageType = 2 // DHCPOFFER
	MessageTypeRequest  MessageType = 3 // DHCPREQUEST
	MessageTypeDecline  MessageType = 4 // DHCPDECLINE
	MessageTypeAck      MessageType = 5 // DHCPACK
	MessageTypeNak      MessageType = 6 // DHCPNAK
	MessageTypeRelease  MessageType = 7 // DHCPRELEASE
	MessageTypeInform   MessageType = 8 // DHCPINFORM
)

func (m MessageType) String() string {
	switch m {
	case MessageTypeDiscover:
		return "DHCPDISCOVER"
	case MessageTypeOffer:
		return "DHCPOFFER"
	case MessageTypeRequest:
		return "DHCPREQUEST"
	case MessageTypeDecline:
		return "DHCPDECLINE"
	case MessageTypeAck:
		return "DHCPACK"
	case MessageTypeNak:
		return "DHCPNAK"
	case MessageTypeRelease:
		return "DHCPRELEASE"
	case MessageTypeInform:
		return "DHCPINFORM"
	default:
		return "UNKNOWN"
	}
}

// DHCP Op Codes (RFC 2131 §2)
type OpCode byte

const (
	OpCodeBootRequest OpCode = 1 // BOOTREQUEST
	OpCodeBootReply   OpCode = 2 // BOOTREPLY
)

// Hardware Types (RFC 1700)
type HardwareType byte

const (
	HardwareTypeEthernet HardwareType = 1
)

// DHCP Option Codes (RFC 2132). Only the codes the client writes or reads
// are listed; anything else is skipped by length when parsing.
type OptionCode byte

const (
	OptionPad                  OptionCode = 0
	OptionSubnetMask           OptionCode = 1
	OptionRouter               OptionCode = 3
	OptionDomainNameServer     OptionCode = 6
	OptionHostname             OptionCode = 12
	OptionDomainName           OptionCode = 15
	OptionRequestedIP          OptionCode = 50
	OptionIPLeaseTime          OptionCode = 51
	OptionDHCPMessageType      OptionCode = 53
	OptionServerIdentifier     OptionCode = 54
	OptionParameterRequestList OptionCode = 55
	OptionRenewalTime          OptionCode = 58
	OptionRebindingTime        OptionCode = 59
	OptionClientIdentifier     OptionCode = 61
	OptionEnd                  OptionCode = 255
)

// DefaultParameterRequestList is sent in every client request (option 55).
var DefaultParameterRequestList = []OptionCode{
	OptionSubnetMask,
	OptionRouter,
	OptionDomainNameServer,
	OptionDomainName,
	OptionRenewalTime,
	OptionRebindingTime,
}

// BOOTP message layout (RFC 951, RFC 2131 §2).
const (
	HeaderSize     = 236 // fixed BOOTP header
	OptionsSize    = 312 // options area including the magic cookie
	MessageSize    = HeaderSize + OptionsSize
	OptionsOffset  = HeaderSize + 4 // first option after the magic cookie
	MinPacketSize  = 300            // BOOTP minimum (RFC 1542 §2.1)
	MaxPacketSize  = 1500           // Ethernet MTU
	CHAddrSize     = 16
	SNameSize      = 64
	FileSize       = 128
	FlagBroadcast  = 0x8000
	InfiniteLease  = 0xFFFFFFFF // option 51 value for an infinite lease
	MaxOptionValue = 255
)

// DHCP Ports
const (
	ServerPort = 67
	ClientPort = 68
)

// DHCP Magic Cookie (RFC 2131 §3)
var MagicCookie = []byte{99, 130, 83, 99}

// Broadcast MAC and IP
var (
	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	BroadcastIP  = net.IPv4(255, 255, 255, 255).To4()
	ZeroIP       = net.IPv4(0, 0, 0, 0).To4()
)

// Conflict Detection Methods
type DetectionMethod string

const (
	DetectionSendProbe DetectionMethod = "send_probe"
	DetectionICMPProbe DetectionMethod = "icmp_probe"
	DetectionCache     DetectionMethod = "probe_cache"
)
