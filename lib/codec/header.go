package codec

import (
	"encoding/binary"

	"github.com/freelan-go/fscp/lib/util"
)

// HeaderSize is the length in bytes of the header prefixing every
// FSCP message: version, type, and a big-endian payload length.
const HeaderSize = 4

// MaxDatagramSize is the hard cap on a single FSCP datagram, matching
// the largest length a 2-byte payload-length field can express plus
// the header.
const MaxDatagramSize = HeaderSize + 0xFFFF

// Header is the fixed-size preamble of every FSCP message.
type Header struct {
	Version byte
	Type    MessageType
	Length  uint16
}

// PutHeader writes h into the first HeaderSize bytes of dst.
func PutHeader(dst []byte, h Header) error {
	if len(dst) < HeaderSize {
		return util.ErrBufferTooSmall
	}
	dst[0] = h.Version
	dst[1] = byte(h.Type)
	binary.BigEndian.PutUint16(dst[2:4], h.Length)
	return nil
}

// ParseHeader reads a Header from the front of src.
func ParseHeader(src []byte) (Header, error) {
	if len(src) < HeaderSize {
		return Header{}, util.ErrMalformedMessage
	}
	h := Header{
		Version: src[0],
		Type:    MessageType(src[1]),
		Length:  binary.BigEndian.Uint16(src[2:4]),
	}
	if h.Version != ProtocolVersion {
		return Header{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	return h, nil
}

// frame prepends a header for messageType to payload, failing if dst
// cannot hold the result.
func frame(dst []byte, messageType MessageType, payload []byte) (int, error) {
	total := HeaderSize + len(payload)
	if len(dst) < total {
		return 0, util.ErrBufferTooSmall
	}
	if len(payload) > 0xFFFF {
		return 0, util.NewCodecError(messageType.String(), util.ErrBufferTooSmall)
	}
	if err := PutHeader(dst, Header{Version: ProtocolVersion, Type: messageType, Length: uint16(len(payload))}); err != nil {
		return 0, err
	}
	copy(dst[HeaderSize:total], payload)
	return total, nil
}

// unframe splits a decoded header and datagram into its declared
// payload, failing if the length field and the actual buffer disagree.
func unframe(h Header, datagram []byte) ([]byte, error) {
	payload := datagram[HeaderSize:]
	if int(h.Length) != len(payload) {
		return nil, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	return payload, nil
}
