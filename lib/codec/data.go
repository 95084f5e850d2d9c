package codec

import (
	"encoding/binary"

	"github.com/freelan-go/fscp/lib/util"
)

// TagSize is the length in bytes of the AEAD authentication tag
// carried alongside a DATA-family message's ciphertext.
const TagSize = 16

// dataFixedSize covers the sequence number, the AEAD tag, and the
// 2-byte ciphertext length prefix.
const dataFixedSize = 4 + TagSize + 2

// DataPayload is the payload shared by DATA_k, CONTACT_REQUEST,
// CONTACT, and KEEP_ALIVE messages.
type DataPayload struct {
	SequenceNumber uint32
	Tag            [TagSize]byte
	Ciphertext     []byte
}

// EncodeData writes payload as a message of the given DATA-family
// type into dst. messageType must satisfy MessageType.IsData.
func EncodeData(dst []byte, messageType MessageType, payload DataPayload) (int, error) {
	if !messageType.IsData() {
		return 0, util.NewCodecError(messageType.String(), util.ErrMalformedMessage)
	}
	if len(payload.Ciphertext) > 0xFFFF {
		return 0, util.NewCodecError(messageType.String(), util.ErrBufferTooSmall)
	}

	buf := make([]byte, dataFixedSize+len(payload.Ciphertext))
	off := 0
	binary.BigEndian.PutUint32(buf[off:], payload.SequenceNumber)
	off += 4
	copy(buf[off:], payload.Tag[:])
	off += TagSize
	binary.BigEndian.PutUint16(buf[off:], uint16(len(payload.Ciphertext)))
	off += 2
	copy(buf[off:], payload.Ciphertext)

	return frame(dst, messageType, buf)
}

// DecodeData parses a DATA-family datagram.
func DecodeData(h Header, datagram []byte) (DataPayload, error) {
	if !h.Type.IsData() {
		return DataPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	payload, err := unframe(h, datagram)
	if err != nil {
		return DataPayload{}, err
	}
	if len(payload) < dataFixedSize {
		return DataPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}

	var d DataPayload
	off := 0
	d.SequenceNumber = binary.BigEndian.Uint32(payload[off:])
	off += 4
	copy(d.Tag[:], payload[off:off+TagSize])
	off += TagSize
	ctLen := int(binary.BigEndian.Uint16(payload[off:]))
	off += 2
	if off+ctLen != len(payload) {
		return DataPayload{}, util.NewCodecError(h.Type.String(), util.ErrMalformedMessage)
	}
	d.Ciphertext = make([]byte, ctLen)
	copy(d.Ciphertext, payload[off:])

	return d, nil
}
