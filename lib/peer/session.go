// Package peer tracks per-endpoint cryptographic session state: the
// negotiated cipher suite and curve, the ECDHE handshake material,
// the derived AEAD keys, nonce prefixes, and sequence numbers for
// both the current and the pending ("next") session.
package peer

import (
	"crypto/ecdh"
	"crypto/rand"
	"math"
	"sync"
	"time"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/util"
)

// negotiated holds the fully keyed material for one session
// generation (current or next).
type negotiated struct {
	sessionNumber uint32
	suite         cryptosuite.CipherSuite
	curve         cryptosuite.EllipticCurve

	private *ecdh.PrivateKey // reference dropped (not overwritten) once CompleteSession consumes it

	// localPublicKey is cached at generation time so the session's
	// public key remains available after private is consumed and
	// dropped by CompleteSession — needed to re-emit a SESSION message
	// for an already-completed current session.
	localPublicKey []byte

	localNoncePrefix  [cryptosuite.NoncePrefixSize]byte
	remoteNoncePrefix [cryptosuite.NoncePrefixSize]byte

	localSendKey    []byte
	localReceiveKey []byte

	localSequence  uint32
	remoteSequence uint32

	ready bool // true once complete_session has derived keys
}

// Session is the per-endpoint state a peer-session keeps across the
// handshake and the lifetime of its data channel.
type Session struct {
	mu sync.Mutex

	localHostID  [32]byte
	remoteHostID [32]byte
	haveRemoteID bool

	current *negotiated
	next    *negotiated

	lastActivity time.Time
}

// NewSession creates a peer-session for a local identity whose host
// identifier is localHostID (typically a digest of the local
// certificate, or a random value for a PSK-only identity).
func NewSession(localHostID [32]byte) *Session {
	return &Session{
		localHostID:  localHostID,
		lastActivity: time.Now(),
	}
}

// LocalHostIdentifier returns the local host identifier.
func (s *Session) LocalHostIdentifier() [32]byte {
	return s.localHostID
}

// SetFirstRemoteHostIdentifier pins the remote host identifier the
// first time it is observed (typically from a SESSION message). A
// second call is a no-op: the identifier is fixed for the life of the
// peer-session.
func (s *Session) SetFirstRemoteHostIdentifier(id [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveRemoteID {
		return
	}
	s.remoteHostID = id
	s.haveRemoteID = true
}

// RemoteHostIdentifier returns the pinned remote host identifier and
// whether one has been observed yet.
func (s *Session) RemoteHostIdentifier() ([32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteHostID, s.haveRemoteID
}

// PrepareSession generates a fresh ECDHE key pair and nonce prefix for
// sessionNumber under the given suite/curve and stashes them as the
// next session. It reports whether a new next session was installed;
// it returns false without changing state if a next session with
// identical (sessionNumber, suite, curve) already exists.
func (s *Session) PrepareSession(sessionNumber uint32, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next != nil && s.next.sessionNumber == sessionNumber && s.next.suite == suite && s.next.curve == curve {
		return false, nil
	}

	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return false, err
	}

	n := &negotiated{
		sessionNumber:  sessionNumber,
		suite:          suite,
		curve:          curve,
		private:        priv,
		localPublicKey: priv.PublicKey().Bytes(),
	}
	if _, err := rand.Read(n.localNoncePrefix[:]); err != nil {
		return false, err
	}

	s.next = n
	return true, nil
}

// NextPublicKey returns the ECDHE public key bytes of the pending
// next session, for inclusion in the outgoing SESSION message.
func (s *Session) NextPublicKey() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return nil, false
	}
	return s.next.localPublicKey, true
}

// NextNoncePrefix returns the local nonce prefix generated for the
// pending next session, for inclusion in the outgoing SESSION message.
func (s *Session) NextNoncePrefix() (prefix [cryptosuite.NoncePrefixSize]byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return prefix, false
	}
	return s.next.localNoncePrefix, true
}

// NextParameters returns the suite/curve/session number of the
// pending next session, for signing the outgoing SESSION message.
func (s *Session) NextParameters() (sessionNumber uint32, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return 0, 0, 0, false
	}
	return s.next.sessionNumber, s.next.suite, s.next.curve, true
}

// CompleteSession combines the pending next session's private key
// with remotePublicKey to derive the shared secret, expands it into
// independent send/receive keys, records the remote nonce prefix, and
// promotes next to current. It resets both sequence numbers to zero.
// It returns false if no next session was pending.
func (s *Session) CompleteSession(remotePublicKey []byte, remoteNoncePrefix [cryptosuite.NoncePrefixSize]byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next == nil {
		return false, nil
	}
	n := s.next

	remotePub, err := n.curve.ParsePublicKey(remotePublicKey)
	if err != nil {
		return false, err
	}
	shared, err := n.private.ECDH(remotePub)
	if err != nil {
		return false, err
	}

	if !s.haveRemoteID {
		return false, util.ErrMalformedMessage
	}

	keys, err := cryptosuite.DeriveSessionKeys(n.suite, shared, s.localHostID[:], s.remoteHostID[:])
	if err != nil {
		return false, err
	}

	n.localSendKey = keys.SendKey
	n.localReceiveKey = keys.ReceiveKey
	n.remoteNoncePrefix = remoteNoncePrefix
	n.localSequence = 0
	n.remoteSequence = 0
	n.ready = true
	n.private = nil // the ECDHE private key is consumed; drop it

	s.current = n
	s.next = nil
	s.lastActivity = time.Now()
	return true, nil
}

// HasCurrentSession reports whether a completed current session exists.
func (s *Session) HasCurrentSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.ready
}

// CurrentCipherSuite returns the current session's negotiated suite.
func (s *Session) CurrentCipherSuite() (cryptosuite.CipherSuite, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, false
	}
	return s.current.suite, true
}

// CurrentCurve returns the current session's negotiated curve.
func (s *Session) CurrentCurve() (cryptosuite.EllipticCurve, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0, false
	}
	return s.current.curve, true
}

// CurrentPublicKey returns the ECDHE public key bytes of the current
// session, for re-emitting its SESSION message. Unlike the private
// key, this survives CompleteSession because it is cached at
// generation time rather than derived from the (by-then-dropped) key.
func (s *Session) CurrentPublicKey() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !s.current.ready {
		return nil, false
	}
	return s.current.localPublicKey, true
}

// CurrentNoncePrefix returns the local nonce prefix of the current
// session, for re-emitting its SESSION message.
func (s *Session) CurrentNoncePrefix() (prefix [cryptosuite.NoncePrefixSize]byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !s.current.ready {
		return prefix, false
	}
	return s.current.localNoncePrefix, true
}

// CurrentParameters returns the suite/curve/session number of the
// current session, for signing a re-emitted SESSION message.
func (s *Session) CurrentParameters() (sessionNumber uint32, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !s.current.ready {
		return 0, 0, 0, false
	}
	return s.current.sessionNumber, s.current.suite, s.current.curve, true
}

// IncrementLocalSequenceNumber returns the next strictly-increasing
// local sequence number and the current session's send key and local
// nonce prefix, for encrypting an outgoing message. It fails with
// ErrNoSessionForHost if there is no current session.
func (s *Session) IncrementLocalSequenceNumber() (sequence uint32, sendKey []byte, noncePrefix [cryptosuite.NoncePrefixSize]byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !s.current.ready {
		return 0, nil, noncePrefix, util.ErrNoSessionForHost
	}
	s.current.localSequence++
	return s.current.localSequence, s.current.localSendKey, s.current.localNoncePrefix, nil
}

// SetRemoteSequenceNumber validates that sequence is strictly greater
// than the stored remote sequence number, and if so stores it and
// refreshes the liveness timestamp. It returns the receive key and
// remote nonce prefix needed to have decrypted the message, and
// reports whether the session is now "old" (either sequence number
// has passed half the 32-bit range) and should be rekeyed.
func (s *Session) SetRemoteSequenceNumber(sequence uint32) (receiveKey []byte, noncePrefix [cryptosuite.NoncePrefixSize]byte, old bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !s.current.ready {
		return nil, noncePrefix, false, util.ErrNoSessionForHost
	}
	// Sequence numbers start at 1 (see IncrementLocalSequenceNumber), so
	// a freshly completed session's remoteSequence of 0 always compares
	// strictly less than the first real message.
	if sequence <= s.current.remoteSequence {
		return nil, noncePrefix, false, util.ErrMalformedMessage
	}
	s.current.remoteSequence = sequence
	s.lastActivity = time.Now()
	old = s.current.localSequence > math.MaxUint32/2 || s.current.remoteSequence > math.MaxUint32/2
	return s.current.localReceiveKey, s.current.remoteNoncePrefix, old, nil
}

// IsOld reports whether the current session has passed half the
// 32-bit sequence range on either side and should be rekeyed before
// a counter wraps.
func (s *Session) IsOld() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	return s.current.localSequence > math.MaxUint32/2 || s.current.remoteSequence > math.MaxUint32/2
}

// Touch refreshes the liveness timestamp without touching session keys.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// HasTimedOut reports whether more than timeout has elapsed since the
// last activity on this peer-session.
func (s *Session) HasTimedOut(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity) > timeout
}

// Clear zeroizes the send/receive keys and nonce prefixes of the
// current and next sessions and drops both. A pending next session's
// ECDHE private key is dropped without being overwritten. It reports
// whether a current session existed before clearing.
func (s *Session) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	hadCurrent := s.current != nil && s.current.ready
	zero(s.current)
	zero(s.next)
	s.current = nil
	s.next = nil
	return hadCurrent
}

func zero(n *negotiated) {
	if n == nil {
		return
	}
	for i := range n.localSendKey {
		n.localSendKey[i] = 0
	}
	for i := range n.localReceiveKey {
		n.localReceiveKey[i] = 0
	}
	for i := range n.localNoncePrefix {
		n.localNoncePrefix[i] = 0
	}
	for i := range n.remoteNoncePrefix {
		n.remoteNoncePrefix[i] = 0
	}
}
