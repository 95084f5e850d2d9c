package fscp

import (
	"crypto/x509"
	"net"
	"time"

	"github.com/freelan-go/fscp/lib/codec"
	"github.com/freelan-go/fscp/lib/cryptosuite"
)

// handleDatagram decodes and dispatches one incoming datagram. It
// always runs on the engine actor (the inbox goroutine), so per-peer
// state transitions within it never race another datagram's handling.
func (e *Engine) handleDatagram(endpoint string, addr net.Addr, datagram []byte) {
	h, err := codec.ParseHeader(datagram)
	if err != nil {
		e.log.WithField("from", endpoint).WithError(err).Trace("fscp dropped malformed header")
		return
	}

	switch {
	case h.Type == codec.HelloRequest:
		e.handleHelloRequest(endpoint, addr, h, datagram)
	case h.Type == codec.HelloResponse:
		e.handleHelloResponse(endpoint, h, datagram)
	case h.Type == codec.Presentation:
		e.handlePresentation(endpoint, h, datagram)
	case h.Type == codec.SessionRequest:
		e.handleSessionRequest(endpoint, addr, h, datagram)
	case h.Type == codec.Session:
		e.handleSession(endpoint, addr, h, datagram)
	case h.Type.IsData():
		e.handleDataFamily(endpoint, addr, h, datagram)
	default:
		e.log.WithField("from", endpoint).WithField("type", h.Type.String()).Trace("fscp dropped unknown message type")
	}
}

func (e *Engine) handleHelloRequest(endpoint string, addr net.Addr, h codec.Header, datagram []byte) {
	if !e.helloLimiter.allow(endpoint) {
		return
	}
	number, err := codec.DecodeHello(h, datagram)
	if err != nil {
		return
	}
	if !e.hooks.helloAccept(endpoint) {
		return
	}

	buf := make([]byte, codec.HeaderSize+4)
	if _, err := codec.EncodeHello(buf, true, number); err != nil {
		return
	}
	e.send(addr, buf)
}

func (e *Engine) handleHelloResponse(endpoint string, h codec.Header, datagram []byte) {
	number, err := codec.DecodeHello(h, datagram)
	if err != nil {
		return
	}
	key := greetKey{endpoint: endpoint, number: number}

	e.greetsMu.Lock()
	req, ok := e.greets[key]
	if ok {
		delete(e.greets, key)
	}
	e.greetsMu.Unlock()
	if !ok {
		return
	}
	req.complete(nil, time.Since(req.sentAt))
}

func (e *Engine) handlePresentation(endpoint string, h codec.Header, datagram []byte) {
	if !e.presentationLimiter.allow(endpoint) {
		return
	}
	certDER, err := codec.DecodePresentation(h, datagram)
	if err != nil {
		return
	}

	status := e.presentations.Classify(endpoint, certDER)
	p := e.peerFor(endpoint)
	hasSession := p.session.HasCurrentSession()

	var cert *x509.Certificate
	if len(certDER) > 0 {
		cert, err = x509.ParseCertificate(certDER)
		if err != nil {
			return
		}
	}

	if !e.hooks.presentationAccept(endpoint, cert, status, hasSession) {
		return
	}

	// A PSK-only presentation carries no certificate; PSK authentication
	// is a shared secret, so the remote is verified against our own
	// configured PSK rather than anything it sent over the wire.
	var psk []byte
	if len(certDER) == 0 {
		psk = e.config.Identity.PSK
	}
	e.presentations.Install(endpoint, certDER, psk)
}

// handleSessionRequest validates an incoming SESSION_REQUEST, picks
// the first mutually supported cipher suite and curve, and compares
// the requested session number against any current session's: a
// number past the current one prepares a new next-session and emits
// a fresh SESSION, while a number at or below it re-emits the current
// SESSION instead of negotiating a new one.
func (e *Engine) handleSessionRequest(endpoint string, addr net.Addr, h codec.Header, datagram []byte) {
	req, err := codec.DecodeSessionRequest(h, datagram)
	if err != nil {
		return
	}

	entry, ok := e.presentations.Lookup(endpoint)
	if !ok {
		return
	}
	if err := entry.Verify(signingSuite, req.SignedFields(), req.Signature); err != nil {
		e.log.WithField("from", endpoint).Trace("fscp rejected session_request with a bad signature")
		return
	}

	if !e.hooks.sessionRequestAccept(endpoint, req.CipherSuites, req.Curves) {
		return
	}

	p := e.peerFor(endpoint)

	if curNumber, curSuite, curCurve, hasCurrent := p.session.CurrentParameters(); hasCurrent && req.SessionNumber <= curNumber {
		p.session.SetFirstRemoteHostIdentifier(req.HostID)
		e.emitCurrentSession(endpoint, addr, p, curNumber, curSuite, curCurve)
		return
	}

	suite := firstCommonSuite(req.CipherSuites, e.config.CipherSuites)
	curve := firstCommonCurve(req.Curves, e.config.Curves)
	if suite == cryptosuite.SuiteUnsupported || curve == cryptosuite.CurveUnsupported {
		e.hooks.sessionFailed(endpoint, true, e.config.CipherSuites, req.CipherSuites)
		return
	}

	p.session.SetFirstRemoteHostIdentifier(req.HostID)

	installed, err := p.session.PrepareSession(req.SessionNumber, suite, curve)
	if err != nil {
		e.log.WithField("from", endpoint).WithError(err).Warn("fscp failed to prepare a session")
		return
	}
	if installed {
		e.emitSession(endpoint, addr, p, req.SessionNumber, suite, curve)
	}
}

// handleSession validates an incoming SESSION, completes the session
// it negotiates, and — if it was unsolicited (we had no pending next
// session of our own) — prepares one from its parameters and replies
// with our own SESSION so the exchange converges in one round trip.
func (e *Engine) handleSession(endpoint string, addr net.Addr, h codec.Header, datagram []byte) {
	msg, err := codec.DecodeSession(h, datagram)
	if err != nil {
		return
	}
	if !msg.CipherSuite.IsValid() || msg.Curve == cryptosuite.CurveUnsupported {
		e.hooks.sessionFailed(endpoint, false, e.config.CipherSuites, nil)
		return
	}

	entry, ok := e.presentations.Lookup(endpoint)
	if !ok {
		return
	}
	if err := entry.Verify(msg.CipherSuite, msg.SignedFields(), msg.Signature); err != nil {
		e.log.WithField("from", endpoint).Trace("fscp rejected session with a bad signature")
		return
	}

	if !e.hooks.sessionAccept(endpoint, msg.CipherSuite, msg.Curve) {
		return
	}

	p := e.peerFor(endpoint)
	p.session.SetFirstRemoteHostIdentifier(msg.HostID)

	_, _, _, hadNext := p.session.NextParameters()
	if !hadNext {
		if _, err := p.session.PrepareSession(msg.SessionNumber, msg.CipherSuite, msg.Curve); err != nil {
			e.log.WithField("from", endpoint).WithError(err).Warn("fscp failed to prepare a session")
			return
		}
	}

	isNew := !p.session.HasCurrentSession()
	ok2, err := p.session.CompleteSession(msg.PublicKey, msg.NoncePrefix)
	if err != nil || !ok2 {
		return
	}
	e.hooks.sessionEstablished(endpoint, isNew, msg.CipherSuite, msg.Curve)

	if !hadNext {
		// CompleteSession promoted the session we just prepared to
		// current, so our reply carries the current generation's key.
		e.emitCurrentSession(endpoint, addr, p, msg.SessionNumber, msg.CipherSuite, msg.Curve)
	}
}

func (e *Engine) handleDataFamily(endpoint string, addr net.Addr, h codec.Header, datagram []byte) {
	p := e.peerFor(endpoint)
	if !p.session.HasCurrentSession() {
		return
	}

	payload, err := codec.DecodeData(h, datagram)
	if err != nil {
		return
	}

	receiveKey, noncePrefix, old, err := p.session.SetRemoteSequenceNumber(payload.SequenceNumber)
	if err != nil {
		e.log.WithField("from", endpoint).Trace("fscp dropped a replayed or out-of-order data message")
		return
	}

	suite, _ := p.session.CurrentCipherSuite()
	aead, err := suite.AEAD(receiveKey)
	if err != nil {
		return
	}
	nonce := cryptosuite.BuildNonce(noncePrefix, payload.SequenceNumber)
	sealed := append(append([]byte{}, payload.Ciphertext...), payload.Tag[:]...)
	plaintext, err := aead.Open(sealed[:0], nonce[:], sealed, nil)
	if err != nil {
		e.log.WithField("from", endpoint).Trace("fscp dropped a data message that failed authentication")
		return
	}

	if old {
		e.triggerRekey(endpoint, addr, p)
	}

	switch h.Type {
	case codec.KeepAlive:
		// Liveness already refreshed by SetRemoteSequenceNumber.
	case codec.ContactRequest:
		e.handleContactRequest(endpoint, addr, plaintext)
	case codec.Contact:
		e.handleContact(endpoint, plaintext)
	default:
		channel, _ := h.Type.Channel()
		e.hooks.dataReceived(endpoint, channel, plaintext)
	}
}

// emitSession encodes and sends a SESSION message describing the
// peer-session's pending next generation.
func (e *Engine) emitSession(endpoint string, addr net.Addr, p *peerState, sessionNumber uint32, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve) {
	pub, ok := p.session.NextPublicKey()
	if !ok {
		return
	}
	noncePrefix, ok := p.session.NextNoncePrefix()
	if !ok {
		return
	}
	e.sendSession(endpoint, addr, sessionNumber, suite, curve, pub, noncePrefix)
}

// emitCurrentSession encodes and sends a SESSION message describing
// the peer-session's already-completed current generation, for
// re-advertising a session to a peer that requested a session number
// at or below the one already negotiated.
func (e *Engine) emitCurrentSession(endpoint string, addr net.Addr, p *peerState, sessionNumber uint32, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve) {
	pub, ok := p.session.CurrentPublicKey()
	if !ok {
		return
	}
	noncePrefix, ok := p.session.CurrentNoncePrefix()
	if !ok {
		return
	}
	e.sendSession(endpoint, addr, sessionNumber, suite, curve, pub, noncePrefix)
}

func (e *Engine) sendSession(endpoint string, addr net.Addr, sessionNumber uint32, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve, pub []byte, noncePrefix [cryptosuite.NoncePrefixSize]byte) {
	msg := codec.SessionPayload{
		SessionNumber: sessionNumber,
		HostID:        e.localID,
		CipherSuite:   suite,
		Curve:         curve,
		NoncePrefix:   noncePrefix,
		PublicKey:     pub,
	}
	sig, err := e.config.Identity.Sign(suite, msg.SignedFields())
	if err != nil {
		return
	}
	msg.Signature = sig

	buf := make([]byte, codec.HeaderSize+128+len(pub)+len(sig))
	n, err := codec.EncodeSession(buf, msg)
	if err != nil {
		return
	}
	e.send(addr, buf[:n])
}

// triggerRekey prepares and offers a fresh next session once the
// current one's sequence numbers have grown old, keeping the same
// suite and curve the peers already agreed on.
func (e *Engine) triggerRekey(endpoint string, addr net.Addr, p *peerState) {
	suite, ok := p.session.CurrentCipherSuite()
	if !ok {
		return
	}
	curve, _ := p.session.CurrentCurve()
	sessionNumber := p.allocateSessionNumber()
	installed, err := p.session.PrepareSession(sessionNumber, suite, curve)
	if err != nil || !installed {
		return
	}
	e.emitSession(endpoint, addr, p, sessionNumber, suite, curve)
}

// onKeepAliveTick runs on the engine actor once per keep-alive period:
// it sends a KEEP_ALIVE to every peer with an active session, or tears
// the session down if it has gone quiet past the configured timeout.
func (e *Engine) onKeepAliveTick() {
	e.mu.RLock()
	peers := make([]*peerState, 0, len(e.peers))
	for _, p := range e.peers {
		peers = append(peers, p)
	}
	e.mu.RUnlock()

	for _, p := range peers {
		if !p.session.HasCurrentSession() {
			continue
		}
		if p.session.HasTimedOut(e.config.SessionTimeout) {
			p.session.Clear()
			e.hooks.sessionLost(p.endpoint, "timeout")
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", p.endpoint)
		if err != nil {
			continue
		}
		e.sendKeepAlive(p.endpoint, addr, p)
	}
}

func firstCommonSuite(offered, local []cryptosuite.CipherSuite) cryptosuite.CipherSuite {
	for _, o := range offered {
		for _, l := range local {
			if o == l {
				return o
			}
		}
	}
	return cryptosuite.SuiteUnsupported
}

func firstCommonCurve(offered, local []cryptosuite.EllipticCurve) cryptosuite.EllipticCurve {
	for _, o := range offered {
		for _, l := range local {
			if o == l {
				return o
			}
		}
	}
	return cryptosuite.CurveUnsupported
}
