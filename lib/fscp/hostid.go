package fscp

import (
	"crypto/rand"
	"crypto/sha256"

	"github.com/freelan-go/fscp/lib/identity"
)

// hostIdentifier derives the 32-byte host identifier used for peer
// tie-breaking and HKDF labeling: the SHA-256 digest of the identity's
// certificate, or 32 random bytes when the identity carries no
// certificate (peers sharing a PSK would otherwise get equal identifiers).
func hostIdentifier(id *identity.Store) [32]byte {
	if id.HasCertificate() {
		return sha256.Sum256(id.CertificateDER())
	}
	var hostID [32]byte
	rand.Read(hostID[:])
	return hostID
}
