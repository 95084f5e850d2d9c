package codec

import (
	"encoding/binary"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/util"
)

// SessionPayload is the payload of a SESSION message: the negotiated
// suite/curve, the sender's nonce prefix for the data channel, and
// the ECDHE public key a peer contributes, signed over every
// preceding field.
type SessionPayload struct {
	SessionNumber uint32
	HostID        [HostIDSize]byte
	CipherSuite   cryptosuite.CipherSuite
	Curve         cryptosuite.EllipticCurve
	NoncePrefix   [cryptosuite.NoncePrefixSize]byte
	PublicKey     []byte
	Signature     []byte
}

// sessionFixedSize covers session number, host id, suite, curve, and
// the sender's nonce prefix, preceding the length-prefixed fields.
const sessionFixedSize = 4 + HostIDSize + 1 + 1 + cryptosuite.NoncePrefixSize

// EncodeSession writes s as a SESSION message into dst.
func EncodeSession(dst []byte, s SessionPayload) (int, error) {
	if len(s.PublicKey) > 0xFFFF || len(s.Signature) > 0xFFFF {
		return 0, util.NewCodecError(Session.String(), util.ErrBufferTooSmall)
	}

	size := sessionFixedSize + 2 + len(s.PublicKey) + 2 + len(s.Signature)
	payload := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint32(payload[off:], s.SessionNumber)
	off += 4
	copy(payload[off:], s.HostID[:])
	off += HostIDSize
	payload[off] = byte(s.CipherSuite)
	off++
	payload[off] = byte(s.Curve)
	off++
	copy(payload[off:], s.NoncePrefix[:])
	off += cryptosuite.NoncePrefixSize

	binary.BigEndian.PutUint16(payload[off:], uint16(len(s.PublicKey)))
	off += 2
	copy(payload[off:], s.PublicKey)
	off += len(s.PublicKey)

	binary.BigEndian.PutUint16(payload[off:], uint16(len(s.Signature)))
	off += 2
	copy(payload[off:], s.Signature)

	return frame(dst, Session, payload)
}

// DecodeSession parses a SESSION datagram.
func DecodeSession(h Header, datagram []byte) (SessionPayload, error) {
	payload, err := unframe(h, datagram)
	if err != nil {
		return SessionPayload{}, err
	}
	if len(payload) < sessionFixedSize {
		return SessionPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}

	var s SessionPayload
	off := 0

	s.SessionNumber = binary.BigEndian.Uint32(payload[off:])
	off += 4
	copy(s.HostID[:], payload[off:off+HostIDSize])
	off += HostIDSize
	s.CipherSuite = cryptosuite.CipherSuite(payload[off])
	off++
	s.Curve = cryptosuite.EllipticCurve(payload[off])
	off++
	copy(s.NoncePrefix[:], payload[off:off+cryptosuite.NoncePrefixSize])
	off += cryptosuite.NoncePrefixSize

	if off+2 > len(payload) {
		return SessionPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	keyLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if off+keyLen > len(payload) {
		return SessionPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	s.PublicKey = make([]byte, keyLen)
	copy(s.PublicKey, payload[off:off+keyLen])
	off += keyLen

	if off+2 > len(payload) {
		return SessionPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	sigLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if off+sigLen != len(payload) {
		return SessionPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	s.Signature = make([]byte, sigLen)
	copy(s.Signature, payload[off:])

	return s, nil
}

// SignedFields returns the byte sequence a SESSION signature is
// computed over: every field preceding the signature itself.
func (s SessionPayload) SignedFields() []byte {
	size := sessionFixedSize + 2 + len(s.PublicKey)
	buf := make([]byte, size)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], s.SessionNumber)
	off += 4
	copy(buf[off:], s.HostID[:])
	off += HostIDSize
	buf[off] = byte(s.CipherSuite)
	off++
	buf[off] = byte(s.Curve)
	off++
	copy(buf[off:], s.NoncePrefix[:])
	off += cryptosuite.NoncePrefixSize
	binary.BigEndian.PutUint16(buf[off:], uint16(len(s.PublicKey)))
	off += 2
	copy(buf[off:], s.PublicKey)
	return buf
}
