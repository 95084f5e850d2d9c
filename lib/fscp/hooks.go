package fscp

import (
	"crypto/x509"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/identity"
)

// Hooks lets an embedder observe and gate handshake events. Every
// field is optional; a nil hook falls back to the stated default.
type Hooks struct {
	// HelloAccept gates a HELLO_REQUEST that already passed the rate
	// limit. Default: accept.
	HelloAccept func(endpoint string, def bool) bool

	// PresentationAccept gates an incoming PRESENTATION. status is
	// PresentationFirst/Same/New; hasSession reports whether a current
	// session is already active with this endpoint. Default: accept.
	PresentationAccept func(endpoint string, cert *x509.Certificate, status identity.PresentationStatus, hasSession bool) bool

	// SessionRequestAccept gates a verified SESSION_REQUEST. Default: accept.
	SessionRequestAccept func(endpoint string, cipherCaps []cryptosuite.CipherSuite, curveCaps []cryptosuite.EllipticCurve, def bool) bool

	// SessionAccept gates a verified SESSION message. Default: accept.
	SessionAccept func(endpoint string, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve, def bool) bool

	// SessionFailed fires when the handshake cannot agree on parameters.
	SessionFailed func(endpoint string, isNew bool, localSuites []cryptosuite.CipherSuite, remoteSuites []cryptosuite.CipherSuite)

	// SessionEstablished fires once a current session is installed.
	SessionEstablished func(endpoint string, isNew bool, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve)

	// SessionLost fires when a session is removed. reason is one of
	// "timeout", "manual_termination", or "error".
	SessionLost func(endpoint string, reason string)

	// DataReceived fires for each decrypted DATA_k message.
	DataReceived func(endpoint string, channel int, payload []byte)

	// ContactRequestReceived gates answering a CONTACT_REQUEST.
	ContactRequestReceived func(endpoint string, cert *x509.Certificate, hash [32]byte, requestedEndpoint string) bool

	// ContactReceived fires when a CONTACT message delivers a learned endpoint.
	ContactReceived func(endpoint string, hash [32]byte, learnedEndpoint string)
}

func (h *Hooks) helloAccept(endpoint string) bool {
	if h == nil || h.HelloAccept == nil {
		return true
	}
	return h.HelloAccept(endpoint, true)
}

func (h *Hooks) presentationAccept(endpoint string, cert *x509.Certificate, status identity.PresentationStatus, hasSession bool) bool {
	if h == nil || h.PresentationAccept == nil {
		return true
	}
	return h.PresentationAccept(endpoint, cert, status, hasSession)
}

func (h *Hooks) sessionRequestAccept(endpoint string, cipherCaps []cryptosuite.CipherSuite, curveCaps []cryptosuite.EllipticCurve) bool {
	if h == nil || h.SessionRequestAccept == nil {
		return true
	}
	return h.SessionRequestAccept(endpoint, cipherCaps, curveCaps, true)
}

func (h *Hooks) sessionAccept(endpoint string, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve) bool {
	if h == nil || h.SessionAccept == nil {
		return true
	}
	return h.SessionAccept(endpoint, suite, curve, true)
}

func (h *Hooks) sessionFailed(endpoint string, isNew bool, local, remote []cryptosuite.CipherSuite) {
	if h != nil && h.SessionFailed != nil {
		h.SessionFailed(endpoint, isNew, local, remote)
	}
}

func (h *Hooks) sessionEstablished(endpoint string, isNew bool, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve) {
	if h != nil && h.SessionEstablished != nil {
		h.SessionEstablished(endpoint, isNew, suite, curve)
	}
}

func (h *Hooks) sessionLost(endpoint string, reason string) {
	if h != nil && h.SessionLost != nil {
		h.SessionLost(endpoint, reason)
	}
}

func (h *Hooks) dataReceived(endpoint string, channel int, payload []byte) {
	if h != nil && h.DataReceived != nil {
		h.DataReceived(endpoint, channel, payload)
	}
}

func (h *Hooks) contactRequestReceived(endpoint string, cert *x509.Certificate, hash [32]byte, requested string) bool {
	if h == nil || h.ContactRequestReceived == nil {
		return true
	}
	return h.ContactRequestReceived(endpoint, cert, hash, requested)
}

func (h *Hooks) contactReceived(endpoint string, hash [32]byte, learned string) {
	if h != nil && h.ContactReceived != nil {
		h.ContactReceived(endpoint, hash, learned)
	}
}
