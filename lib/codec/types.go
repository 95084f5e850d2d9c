// Package codec implements the FSCP wire format: the 4-byte message
// header shared by every datagram, and the per-type payload encodings
// for the handshake and data messages.
package codec

import "fmt"

// ProtocolVersion is the only version this codec emits or accepts.
const ProtocolVersion byte = 3

// MessageType identifies the payload layout that follows the header.
type MessageType byte

const (
	HelloRequest   MessageType = 0x00
	HelloResponse  MessageType = 0x01
	Presentation   MessageType = 0x02
	SessionRequest MessageType = 0x03
	Session        MessageType = 0x04

	// Data0 through Data15 carry application frames over one of 16
	// independent channels. A caller picks DataChannel(n) rather than
	// naming these individually.
	Data0 MessageType = 0x70

	ContactRequest MessageType = 0xFD
	Contact        MessageType = 0xFE
	KeepAlive      MessageType = 0xFF
)

// DataChannel returns the message type for data channel n (0-15).
func DataChannel(n int) MessageType {
	return Data0 + MessageType(n)
}

// Channel returns the channel number carried by a DATA_k message type
// and reports whether t actually is one.
func (t MessageType) Channel() (int, bool) {
	if t >= Data0 && t <= Data0+15 {
		return int(t - Data0), true
	}
	return 0, false
}

// IsData reports whether t is DATA_k, CONTACT_REQUEST, CONTACT, or
// KEEP_ALIVE — the four message types sharing the DATA payload layout
// (sequence number + AEAD tag + ciphertext).
func (t MessageType) IsData() bool {
	if _, ok := t.Channel(); ok {
		return true
	}
	return t == ContactRequest || t == Contact || t == KeepAlive
}

func (t MessageType) String() string {
	if ch, ok := t.Channel(); ok {
		return fmt.Sprintf("DATA_%d", ch)
	}
	switch t {
	case HelloRequest:
		return "HELLO_REQUEST"
	case HelloResponse:
		return "HELLO_RESPONSE"
	case Presentation:
		return "PRESENTATION"
	case SessionRequest:
		return "SESSION_REQUEST"
	case Session:
		return "SESSION"
	case ContactRequest:
		return "CONTACT_REQUEST"
	case Contact:
		return "CONTACT"
	case KeepAlive:
		return "KEEP_ALIVE"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(t))
	}
}
