package model

import (
	"fmt"
	"strings"
)

// Protocol is the network-layer family of a packet record.
type Protocol int

const (
	// ProtocolOther is a network layer that is neither IPv4 nor IPv6.
	// It is also the zero value.
	ProtocolOther Protocol = iota

	// ProtocolIPv4 is an IPv4 packet.
	ProtocolIPv4

	// ProtocolIPv6 is an IPv6 packet.
	ProtocolIPv6
)

// String returns "IPv4", "IPv6" or "Other".
func (p Protocol) String() string {
	switch p {
	case ProtocolIPv4:
		return "IPv4"
	case ProtocolIPv6:
		return "IPv6"
	default:
		return "Other"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Protocol) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "ipv4":
		*p = ProtocolIPv4
	case "ipv6":
		*p = ProtocolIPv6
	case "other", "":
		*p = ProtocolOther
	default:
		return fmt.Errorf("unknown protocol %q", string(text))
	}
	return nil
}

// PacketRecord is one network-layer packet extracted from a capture.
// Frames without an IP header never become a PacketRecord.
type PacketRecord struct {
	// Index is the 1-based position of the frame in the capture.
	// It identifies the packet in evidence output.
	Index int `json:"index"`

	// Source is the source address in its native textual form.
	Source string `json:"source"`

	// Destination is the destination address in its native textual form.
	// This exact string is compared against the watched address set.
	Destination string `json:"destination"`

	// CapturedAt is the record's capture timestamp.
	CapturedAt Timestamp `json:"captured_at"`

	// Protocol is the network-layer family.
	Protocol Protocol `json:"protocol"`
}
