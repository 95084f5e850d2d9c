package codec

import (
	"encoding/binary"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/util"
)

// HostIDSize is the length in bytes of a host identifier: the value
// peers use to break ties when deriving session keys.
const HostIDSize = 32

// SessionRequestPayload is the payload of a SESSION_REQUEST message:
// the capabilities a peer offers for a prospective session, signed
// over every preceding field.
type SessionRequestPayload struct {
	SessionNumber uint32
	HostID        [HostIDSize]byte
	CipherSuites  []cryptosuite.CipherSuite
	Curves        []cryptosuite.EllipticCurve
	Signature     []byte
}

// EncodeSessionRequest writes r as a SESSION_REQUEST message into dst.
func EncodeSessionRequest(dst []byte, r SessionRequestPayload) (int, error) {
	if len(r.CipherSuites) > 0xFF || len(r.Curves) > 0xFF || len(r.Signature) > 0xFFFF {
		return 0, util.NewCodecError(SessionRequest.String(), util.ErrBufferTooSmall)
	}

	size := 4 + HostIDSize + 1 + len(r.CipherSuites) + 1 + len(r.Curves) + 2 + len(r.Signature)
	payload := make([]byte, size)
	off := 0

	binary.BigEndian.PutUint32(payload[off:], r.SessionNumber)
	off += 4
	copy(payload[off:], r.HostID[:])
	off += HostIDSize

	payload[off] = byte(len(r.CipherSuites))
	off++
	for _, s := range r.CipherSuites {
		payload[off] = byte(s)
		off++
	}

	payload[off] = byte(len(r.Curves))
	off++
	for _, c := range r.Curves {
		payload[off] = byte(c)
		off++
	}

	binary.BigEndian.PutUint16(payload[off:], uint16(len(r.Signature)))
	off += 2
	copy(payload[off:], r.Signature)

	return frame(dst, SessionRequest, payload)
}

// DecodeSessionRequest parses a SESSION_REQUEST datagram.
func DecodeSessionRequest(h Header, datagram []byte) (SessionRequestPayload, error) {
	payload, err := unframe(h, datagram)
	if err != nil {
		return SessionRequestPayload{}, err
	}

	const minLen = 4 + HostIDSize + 1 + 1 + 2
	if len(payload) < minLen {
		return SessionRequestPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}

	var r SessionRequestPayload
	off := 0

	r.SessionNumber = binary.BigEndian.Uint32(payload[off:])
	off += 4
	copy(r.HostID[:], payload[off:off+HostIDSize])
	off += HostIDSize

	if off >= len(payload) {
		return SessionRequestPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	suiteCount := int(payload[off])
	off++
	if off+suiteCount > len(payload) {
		return SessionRequestPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	r.CipherSuites = make([]cryptosuite.CipherSuite, suiteCount)
	for i := 0; i < suiteCount; i++ {
		r.CipherSuites[i] = cryptosuite.CipherSuite(payload[off])
		off++
	}

	if off >= len(payload) {
		return SessionRequestPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	curveCount := int(payload[off])
	off++
	if off+curveCount > len(payload) {
		return SessionRequestPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	r.Curves = make([]cryptosuite.EllipticCurve, curveCount)
	for i := 0; i < curveCount; i++ {
		r.Curves[i] = cryptosuite.EllipticCurve(payload[off])
		off++
	}

	if off+2 > len(payload) {
		return SessionRequestPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	sigLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if off+sigLen != len(payload) {
		return SessionRequestPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	r.Signature = make([]byte, sigLen)
	copy(r.Signature, payload[off:])

	return r, nil
}

// SignedFields returns the byte sequence a SESSION_REQUEST signature
// is computed over: every field preceding the signature itself.
func (r SessionRequestPayload) SignedFields() []byte {
	size := 4 + HostIDSize + 1 + len(r.CipherSuites) + 1 + len(r.Curves)
	buf := make([]byte, size)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], r.SessionNumber)
	off += 4
	copy(buf[off:], r.HostID[:])
	off += HostIDSize
	buf[off] = byte(len(r.CipherSuites))
	off++
	for _, s := range r.CipherSuites {
		buf[off] = byte(s)
		off++
	}
	buf[off] = byte(len(r.Curves))
	off++
	for _, c := range r.Curves {
		buf[off] = byte(c)
		off++
	}
	return buf
}
