// Package cryptosuite implements the cipher suites, named curves, key
// derivation and AEAD construction that FSCP negotiates during the
// handshake and uses on the data channel.
package cryptosuite

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"hash"
)

// CipherSuite identifies an AEAD/hash pair negotiated during the
// handshake. The wire value is a single byte (see the codec package).
type CipherSuite byte

const (
	// SuiteUnsupported marks a suite byte the receiver could not
	// resolve to a known suite. It is never advertised.
	SuiteUnsupported CipherSuite = iota
	// SuiteECDHERSAAES128GCMSHA256 is ECDHE-RSA-AES128-GCM-SHA256.
	SuiteECDHERSAAES128GCMSHA256
	// SuiteECDHERSAAES256GCMSHA384 is ECDHE-RSA-AES256-GCM-SHA384.
	SuiteECDHERSAAES256GCMSHA384
)

// AllSuites lists every suite the engine can advertise, in preference
// order (first match wins during SESSION_REQUEST negotiation).
var AllSuites = []CipherSuite{
	SuiteECDHERSAAES256GCMSHA384,
	SuiteECDHERSAAES128GCMSHA256,
}

// String returns the canonical name of the suite.
func (s CipherSuite) String() string {
	switch s {
	case SuiteECDHERSAAES128GCMSHA256:
		return "ECDHE-RSA-AES128-GCM-SHA256"
	case SuiteECDHERSAAES256GCMSHA384:
		return "ECDHE-RSA-AES256-GCM-SHA384"
	default:
		return "unsupported"
	}
}

// IsValid reports whether s is a known, advertisable suite.
func (s CipherSuite) IsValid() bool {
	switch s {
	case SuiteECDHERSAAES128GCMSHA256, SuiteECDHERSAAES256GCMSHA384:
		return true
	default:
		return false
	}
}

// KeySize returns the AEAD key size in bytes for the suite.
func (s CipherSuite) KeySize() int {
	switch s {
	case SuiteECDHERSAAES128GCMSHA256:
		return 16
	case SuiteECDHERSAAES256GCMSHA384:
		return 32
	default:
		return 0
	}
}

// NewDigest returns a constructor for the hash used both for HKDF key
// expansion and for PSK/HMAC signatures under this suite. The 256-bit
// AES suite names SHA-384 explicitly (spec §4.1); every other suite,
// including PSK signatures under the 128-bit suite, uses SHA-256.
func (s CipherSuite) NewDigest() func() hash.Hash {
	if s == SuiteECDHERSAAES256GCMSHA384 {
		return sha512.New384
	}
	return sha256.New
}

// HashFunc returns the crypto.Hash identifying the suite's digest, for
// use with crypto.Signer.Sign and x509 signature verification.
func (s CipherSuite) HashFunc() crypto.Hash {
	if s == SuiteECDHERSAAES256GCMSHA384 {
		return crypto.SHA384
	}
	return crypto.SHA256
}

// AEAD constructs the AES-GCM AEAD for the given key. The returned
// AEAD always produces a 16-byte authentication tag per spec §6.
func (s CipherSuite) AEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != s.KeySize() {
		return nil, fmt.Errorf("cryptosuite: key length %d does not match suite %s", len(key), s)
	}
	switch s {
	case SuiteECDHERSAAES128GCMSHA256, SuiteECDHERSAAES256GCMSHA384:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, errors.New("cryptosuite: unsupported cipher suite")
	}
}
