package codec

import (
	"encoding/binary"

	"github.com/freelan-go/fscp/lib/util"
)

// helloPayloadSize is the length of a HELLO_REQUEST/HELLO_RESPONSE
// payload: a single big-endian unique number used to correlate the
// response with its request.
const helloPayloadSize = 4

// EncodeHello writes a HELLO_REQUEST or HELLO_RESPONSE message
// carrying uniqueNumber into dst and returns the number of bytes
// written.
func EncodeHello(dst []byte, response bool, uniqueNumber uint32) (int, error) {
	var payload [helloPayloadSize]byte
	binary.BigEndian.PutUint32(payload[:], uniqueNumber)

	t := HelloRequest
	if response {
		t = HelloResponse
	}
	return frame(dst, t, payload[:])
}

// DecodeHello parses a HELLO_REQUEST/HELLO_RESPONSE datagram and
// returns its unique number.
func DecodeHello(h Header, datagram []byte) (uint32, error) {
	payload, err := unframe(h, datagram)
	if err != nil {
		return 0, err
	}
	if len(payload) != helloPayloadSize {
		return 0, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	return binary.BigEndian.Uint32(payload), nil
}
