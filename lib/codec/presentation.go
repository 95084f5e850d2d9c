package codec

import (
	"encoding/binary"

	"github.com/freelan-go/fscp/lib/util"
)

// EncodePresentation writes a PRESENTATION message carrying the
// DER-encoded certificate cert, which may be empty when the sender
// authenticates with a PSK instead of a certificate.
func EncodePresentation(dst []byte, cert []byte) (int, error) {
	if len(cert) > 0xFFFF {
		return 0, util.NewCodecError(Presentation.String(), util.ErrBufferTooSmall)
	}
	payload := make([]byte, 2+len(cert))
	binary.BigEndian.PutUint16(payload[:2], uint16(len(cert)))
	copy(payload[2:], cert)
	return frame(dst, Presentation, payload)
}

// DecodePresentation parses a PRESENTATION datagram and returns the
// DER-encoded certificate bytes it carries (nil for PSK-only peers).
func DecodePresentation(h Header, datagram []byte) ([]byte, error) {
	payload, err := unframe(h, datagram)
	if err != nil {
		return nil, err
	}
	if len(payload) < 2 {
		return nil, util.NewCodecError(Presentation.String(), util.ErrMalformedMessage)
	}
	certLen := binary.BigEndian.Uint16(payload[:2])
	rest := payload[2:]
	if int(certLen) != len(rest) {
		return nil, util.NewCodecError(Presentation.String(), util.ErrMalformedMessage)
	}
	if certLen == 0 {
		return nil, nil
	}
	cert := make([]byte, certLen)
	copy(cert, rest)
	return cert, nil
}
