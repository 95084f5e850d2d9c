package cryptosuite

import (
	"bytes"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DerivedKeys holds the independent send/receive material produced by
// expanding an ECDHE shared secret through a cipher suite's digest.
type DerivedKeys struct {
	SendKey    []byte
	ReceiveKey []byte
}

// DeriveSessionKeys expands sharedSecret into a send key and a
// receive key for the given suite, using the HKDF construction
// labeled by the two peers' host identifiers.
//
// Per spec §4.2, both sides must derive identical keys without
// agreeing out-of-band on which of them is the sender for each key:
// the HKDF info string is built from the host identifiers in a fixed
// order, `min(local, remote) || max(local, remote)`, so the lower
// identifier always names the "A→B" key and the higher one always
// names "B→A". Each side then assigns SendKey/ReceiveKey by comparing
// its own identifier to the remote one.
func DeriveSessionKeys(suite CipherSuite, sharedSecret, localHostID, remoteHostID []byte) (DerivedKeys, error) {
	keySize := suite.KeySize()
	if keySize == 0 {
		return DerivedKeys{}, errUnsupportedSuite(suite)
	}

	lowID, highID := orderIdentifiers(localHostID, remoteHostID)
	info := append(append([]byte{}, lowID...), highID...)

	reader := hkdf.New(suite.NewDigest(), sharedSecret, nil, info)

	abKey := make([]byte, keySize)
	baKey := make([]byte, keySize)
	if _, err := io.ReadFull(reader, abKey); err != nil {
		return DerivedKeys{}, err
	}
	if _, err := io.ReadFull(reader, baKey); err != nil {
		return DerivedKeys{}, err
	}

	// The lower identifier's side sends with abKey and receives with
	// baKey; the higher identifier's side is the mirror image.
	if bytes.Compare(localHostID, remoteHostID) <= 0 {
		return DerivedKeys{SendKey: abKey, ReceiveKey: baKey}, nil
	}
	return DerivedKeys{SendKey: baKey, ReceiveKey: abKey}, nil
}

// orderIdentifiers returns (a, b) with a <= b lexicographically.
func orderIdentifiers(local, remote []byte) (lo, hi []byte) {
	if bytes.Compare(local, remote) <= 0 {
		return local, remote
	}
	return remote, local
}

func errUnsupportedSuite(s CipherSuite) error {
	return &unsupportedSuiteError{suite: s}
}

type unsupportedSuiteError struct {
	suite CipherSuite
}

func (e *unsupportedSuiteError) Error() string {
	return "cryptosuite: unsupported cipher suite: " + e.suite.String()
}
