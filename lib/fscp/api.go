package fscp

import (
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/freelan-go/fscp/lib/codec"
	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/util"
)

// signingSuite is the fixed suite used to sign/verify SESSION_REQUEST
// messages, whose fields negotiate the suite itself and so cannot be
// signed under a not-yet-agreed suite. Every other signature uses the
// suite the SESSION message itself carries.
const signingSuite = cryptosuite.SuiteECDHERSAAES128GCMSHA256

// Greet sends a HELLO_REQUEST to endpoint and invokes done with the
// measured round-trip once a matching HELLO_RESPONSE arrives, or with
// ErrHelloTimedOut if none arrives within timeout.
func (e *Engine) Greet(endpoint string, timeout time.Duration, done func(rtt time.Duration, err error)) error {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}

	number := nextHelloNumber(e)
	key := greetKey{endpoint: endpoint, number: number}
	req := &greetRequest{done: make(chan struct{}), sentAt: time.Now()}

	e.greetsMu.Lock()
	e.greets[key] = req
	e.greetsMu.Unlock()

	req.timer = time.AfterFunc(timeout, func() {
		e.greetsMu.Lock()
		delete(e.greets, key)
		e.greetsMu.Unlock()
		req.complete(util.ErrHelloTimedOut, 0)
	})

	buf := make([]byte, codec.HeaderSize+4)
	if _, err := codec.EncodeHello(buf, false, number); err != nil {
		return err
	}
	e.send(addr, buf)

	if done != nil {
		go func() {
			<-req.done
			done(req.rtt, req.result)
		}()
	}
	return nil
}

// SyncGreet blocks until the greet completes or timeout elapses.
func (e *Engine) SyncGreet(endpoint string, timeout time.Duration) (time.Duration, error) {
	type result struct {
		rtt time.Duration
		err error
	}
	ch := make(chan result, 1)
	if err := e.Greet(endpoint, timeout, func(rtt time.Duration, err error) {
		ch <- result{rtt, err}
	}); err != nil {
		return 0, err
	}
	r := <-ch
	return r.rtt, r.err
}

// IntroduceTo sends a PRESENTATION carrying the local certificate (or
// an empty payload for a PSK-only identity) to endpoint.
func (e *Engine) IntroduceTo(endpoint string) error {
	if !e.config.Identity.Usable() {
		return util.ErrNoIdentity
	}
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}

	cert := e.config.Identity.CertificateDER()
	buf := make([]byte, codec.HeaderSize+2+len(cert))
	if _, err := codec.EncodePresentation(buf, cert); err != nil {
		return err
	}
	e.send(addr, buf)
	return nil
}

// RequestSession emits a signed SESSION_REQUEST advertising the
// engine's cipher-suite and curve capabilities to endpoint. It fails
// with ErrSessionAlreadyExists if a current session is already active.
func (e *Engine) RequestSession(endpoint string) error {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}
	p := e.peerFor(endpoint)
	if p.session.HasCurrentSession() {
		return util.ErrSessionAlreadyExists
	}

	sessionNumber := p.allocateSessionNumber()
	req := codec.SessionRequestPayload{
		SessionNumber: sessionNumber,
		HostID:        e.localID,
		CipherSuites:  e.config.CipherSuites,
		Curves:        e.config.Curves,
	}
	sig, err := e.config.Identity.Sign(signingSuite, req.SignedFields())
	if err != nil {
		return err
	}
	req.Signature = sig

	size := codec.HeaderSize + 4 + codec.HostIDSize + 2 + len(req.CipherSuites) + len(req.Curves) + 2 + len(sig)
	buf := make([]byte, size)
	if _, err := codec.EncodeSessionRequest(buf, req); err != nil {
		return err
	}
	e.send(addr, buf)
	return nil
}

// SendData encrypts payload with the current session's send key and a
// freshly incremented sequence number, and transmits it as DATA_channel.
// It fails with ErrNoSessionForHost if there is no current session.
func (e *Engine) SendData(endpoint string, channel int, payload []byte) error {
	if channel < 0 || channel > 15 {
		return fmt.Errorf("fscp: channel %d out of range", channel)
	}
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}
	p := e.peerFor(endpoint)
	return e.sendEncrypted(endpoint, addr, p, codec.DataChannel(channel), payload)
}

// sendKeepAlive transmits a KEEP_ALIVE carrying random payload bytes
// inside the AEAD envelope, to refresh the remote's liveness timer.
func (e *Engine) sendKeepAlive(endpoint string, addr net.Addr, p *peerState) {
	payload := make([]byte, 32)
	if _, err := rand.Read(payload); err != nil {
		return
	}
	_ = e.sendEncrypted(endpoint, addr, p, codec.KeepAlive, payload)
}

// CloseSession clears the peer-session for endpoint and fires
// session-lost with reason "manual_termination". It fails with
// ErrNoSessionForHost if there is no current session.
func (e *Engine) CloseSession(endpoint string) error {
	p := e.peerFor(endpoint)
	if !p.session.HasCurrentSession() {
		return util.ErrNoSessionForHost
	}
	p.session.Clear()
	e.hooks.sessionLost(endpoint, "manual_termination")
	return nil
}
