package cryptosuite

import "encoding/binary"

// NoncePrefixSize is the length in bytes of the per-session,
// per-direction nonce prefix (spec §3, §4.2).
const NoncePrefixSize = 8

// SequenceSize is the length in bytes of the big-endian sequence
// number component of an AEAD nonce.
const SequenceSize = 4

// NonceSize is the total length of an AES-GCM nonce built by FSCP.
const NonceSize = NoncePrefixSize + SequenceSize

// BuildNonce concatenates a direction's nonce prefix with a
// big-endian sequence number to form the 12-byte AEAD nonce used for
// AES-GCM. The same (prefix, sequence) pair must never be reused for
// encryption (spec §8 property 3); the sequence-number discipline
// enforced by the peer package is what guarantees this.
func BuildNonce(prefix [NoncePrefixSize]byte, sequence uint32) [NonceSize]byte {
	var nonce [NonceSize]byte
	copy(nonce[:NoncePrefixSize], prefix[:])
	binary.BigEndian.PutUint32(nonce[NoncePrefixSize:], sequence)
	return nonce
}
