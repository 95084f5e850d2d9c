package fscp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/freelan-go/fscp/lib/codec"
	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/identity"
)

// TestHandleSessionRequest_ReEmitsCurrentSession exercises the branch
// where an incoming SESSION_REQUEST names a session number at or
// below the one already current: the handler must re-emit the
// existing SESSION rather than negotiate a fresh one.
func TestHandleSessionRequest_ReEmitsCurrentSession(t *testing.T) {
	a := newTestEngine(t, "shared-secret")

	var established sync.WaitGroup
	established.Add(1)

	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Identity = &identity.Store{PSK: []byte("shared-secret")}
	b, err := New(cfg, &Hooks{
		SessionEstablished: func(string, bool, cryptosuite.CipherSuite, cryptosuite.EllipticCurve) {
			established.Done()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { b.Stop(t.Context()) })

	bAddr := b.conn.LocalAddr().String()
	aAddr := a.conn.LocalAddr().String()

	if err := a.IntroduceTo(bAddr); err != nil {
		t.Fatalf("IntroduceTo() error = %v", err)
	}
	if err := b.IntroduceTo(aAddr); err != nil {
		t.Fatalf("IntroduceTo() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := a.RequestSession(bAddr); err != nil {
		t.Fatalf("RequestSession() error = %v", err)
	}
	waitOrTimeout(t, &established, 2*time.Second, "session establishment")

	bp := b.peerFor(aAddr)
	number, suite, curve, ok := bp.session.CurrentParameters()
	if !ok {
		t.Fatal("b should have a current session after establishment")
	}
	pubBefore, ok := bp.session.CurrentPublicKey()
	if !ok {
		t.Fatal("b should expose a current public key after establishment")
	}

	// Replay a's original SESSION_REQUEST parameters at the same
	// session number: this should re-emit b's existing SESSION, not
	// stage a new next-session.
	req := codec.SessionRequestPayload{
		SessionNumber: number,
		HostID:        a.localID,
		CipherSuites:  []cryptosuite.CipherSuite{suite},
		Curves:        []cryptosuite.EllipticCurve{curve},
	}
	sig, err := a.config.Identity.Sign(signingSuite, req.SignedFields())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	req.Signature = sig

	size := codec.HeaderSize + 4 + codec.HostIDSize + 2 + len(req.CipherSuites) + len(req.Curves) + 2 + len(sig)
	buf := make([]byte, size)
	n, err := codec.EncodeSessionRequest(buf, req)
	if err != nil {
		t.Fatalf("EncodeSessionRequest() error = %v", err)
	}
	h, err := codec.ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}

	aUDPAddr, err := net.ResolveUDPAddr("udp", aAddr)
	if err != nil {
		t.Fatalf("ResolveUDPAddr() error = %v", err)
	}
	b.handleSessionRequest(aAddr, aUDPAddr, h, buf[:n])

	if _, _, _, hadNext := bp.session.NextParameters(); hadNext {
		t.Error("re-emitting the current session should not stage a new next-session")
	}
	pubAfter, ok := bp.session.CurrentPublicKey()
	if !ok || string(pubAfter) != string(pubBefore) {
		t.Error("the current session's public key should be unchanged after a same-number SESSION_REQUEST")
	}
}
