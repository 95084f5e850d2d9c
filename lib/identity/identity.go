// Package identity holds the local signing material and the per-peer
// presentation state (certificates and PSKs) learned over the wire.
package identity

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/util"
)

// Store is the local identity used to sign SESSION_REQUEST/SESSION
// messages and to present a certificate during PRESENTATION.
//
// Cert and Signer may both be nil when the identity is PSK-only; PSK
// may be empty when the identity relies solely on a certificate. At
// least one of (Cert and Signer) or PSK must be set for the identity
// to be usable — callers should check Usable() before presenting.
type Store struct {
	Cert   *x509.Certificate
	Signer crypto.Signer
	PSK    []byte
}

// Usable reports whether the identity can sign or authenticate at all.
func (s *Store) Usable() bool {
	if s == nil {
		return false
	}
	return (s.Cert != nil && s.Signer != nil) || len(s.PSK) > 0
}

// HasCertificate reports whether the identity presents a certificate.
func (s *Store) HasCertificate() bool {
	return s != nil && s.Cert != nil && s.Signer != nil
}

// CertificateDER returns the DER encoding of the local certificate, or
// nil when the identity is PSK-only.
func (s *Store) CertificateDER() []byte {
	if !s.HasCertificate() {
		return nil
	}
	return s.Cert.Raw
}

// Sign produces a signature over message using the suite's digest. It
// prefers the certificate's private key and falls back to an HMAC
// keyed by the PSK, per the PSK/certificate duality described for
// SESSION_REQUEST and SESSION signatures.
func (s *Store) Sign(suite cryptosuite.CipherSuite, message []byte) ([]byte, error) {
	if !s.Usable() {
		return nil, util.ErrNoIdentity
	}
	hashFunc := suite.HashFunc()

	if s.HasCertificate() {
		h := hashFunc.New()
		h.Write(message)
		return s.Signer.Sign(nil, h.Sum(nil), hashFunc)
	}

	mac := hmac.New(hashFunc.New, s.PSK)
	mac.Write(message)
	return mac.Sum(nil), nil
}

// PresentationEntry is what a remote endpoint has presented: its
// certificate (if any) and the PSK accepted at presentation time.
type PresentationEntry struct {
	Cert *x509.Certificate
	PSK  []byte
}

// HasCertificate reports whether the entry carries a certificate.
func (e PresentationEntry) HasCertificate() bool {
	return e.Cert != nil
}

// Verify checks a signature produced by Store.Sign against message,
// using whichever of certificate or PSK the entry carries. A
// certificate takes precedence when both are present, matching the
// signer-side preference in Sign.
func (e PresentationEntry) Verify(suite cryptosuite.CipherSuite, message, signature []byte) error {
	hashFunc := suite.HashFunc()

	if e.HasCertificate() {
		h := hashFunc.New()
		h.Write(message)
		digest := h.Sum(nil)

		switch pub := e.Cert.PublicKey.(type) {
		case *rsa.PublicKey:
			if err := rsa.VerifyPKCS1v15(pub, hashFunc, digest, signature); err != nil {
				return fmt.Errorf("%w: %v", util.ErrMalformedMessage, err)
			}
			return nil
		case *ecdsa.PublicKey:
			if !ecdsa.VerifyASN1(pub, digest, signature) {
				return util.ErrMalformedMessage
			}
			return nil
		default:
			return util.ErrUnsupportedCipherSuite
		}
	}

	if len(e.PSK) == 0 {
		return util.ErrNoIdentity
	}
	mac := hmac.New(hashFunc.New, e.PSK)
	mac.Write(message)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, signature) {
		return util.ErrMalformedMessage
	}
	return nil
}
