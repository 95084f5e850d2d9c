package fscp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/identity"
	"github.com/freelan-go/fscp/lib/util"
)

func newTestEngine(t *testing.T, psk string) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Identity = &identity.Store{PSK: []byte(psk)}
	cfg.KeepAlivePeriod = 50 * time.Millisecond
	cfg.SessionTimeout = 500 * time.Millisecond

	e, err := New(cfg, &Hooks{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { e.Stop(context.Background()) })
	return e
}

func TestEngine_GreetAndEstablishSession(t *testing.T) {
	a := newTestEngine(t, "shared-secret")

	var established sync.WaitGroup
	established.Add(1)
	var gotSuite cryptosuite.CipherSuite
	var gotCurve cryptosuite.EllipticCurve

	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Identity = &identity.Store{PSK: []byte("shared-secret")}
	b, err := New(cfg, &Hooks{
		SessionEstablished: func(endpoint string, isNew bool, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve) {
			gotSuite, gotCurve = suite, curve
			established.Done()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop(context.Background())

	bAddr := b.conn.LocalAddr().String()
	aAddr := a.conn.LocalAddr().String()

	rtt, err := a.SyncGreet(bAddr, time.Second)
	if err != nil {
		t.Fatalf("SyncGreet() error = %v", err)
	}
	if rtt <= 0 {
		t.Error("SyncGreet() returned a non-positive rtt")
	}

	if err := a.IntroduceTo(bAddr); err != nil {
		t.Fatalf("IntroduceTo() error = %v", err)
	}
	if err := b.IntroduceTo(aAddr); err != nil {
		t.Fatalf("IntroduceTo() error = %v", err)
	}
	// Give both presentations a moment to land before requesting a session.
	time.Sleep(20 * time.Millisecond)

	if err := a.RequestSession(bAddr); err != nil {
		t.Fatalf("RequestSession() error = %v", err)
	}

	waitOrTimeout(t, &established, 2*time.Second, "session establishment")

	if gotSuite == cryptosuite.SuiteUnsupported {
		t.Error("SessionEstablished fired with an unsupported suite")
	}
	if gotCurve == cryptosuite.CurveUnsupported {
		t.Error("SessionEstablished fired with an unsupported curve")
	}
}

func TestEngine_SendData_RoundTrips(t *testing.T) {
	a := newTestEngine(t, "shared-secret")

	var established sync.WaitGroup
	established.Add(1)
	var received sync.WaitGroup
	received.Add(1)
	var gotPayload []byte
	var gotChannel int

	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.Identity = &identity.Store{PSK: []byte("shared-secret")}
	b, err := New(cfg, &Hooks{
		SessionEstablished: func(string, bool, cryptosuite.CipherSuite, cryptosuite.EllipticCurve) {
			established.Done()
		},
		DataReceived: func(endpoint string, channel int, payload []byte) {
			gotChannel = channel
			gotPayload = append([]byte(nil), payload...)
			received.Done()
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop(context.Background())

	bAddr := b.conn.LocalAddr().String()
	aAddr := a.conn.LocalAddr().String()

	if _, err := a.SyncGreet(bAddr, time.Second); err != nil {
		t.Fatalf("SyncGreet() error = %v", err)
	}
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

	want := []byte("hello over an authenticated channel")
	if err := a.SendData(bAddr, 3, want); err != nil {
		t.Fatalf("SendData() error = %v", err)
	}
	waitOrTimeout(t, &received, 2*time.Second, "data delivery")

	if gotChannel != 3 {
		t.Errorf("DataReceived channel = %d, want 3", gotChannel)
	}
	if string(gotPayload) != string(want) {
		t.Errorf("DataReceived payload = %q, want %q", gotPayload, want)
	}
}

func TestEngine_RequestSession_FailsWithoutIdentityMatch(t *testing.T) {
	a := newTestEngine(t, "secret-a")
	b := newTestEngine(t, "secret-b")

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

	// Mismatched PSKs mean the SESSION_REQUEST signature never verifies
	// on b's side, so no session should ever come up.
	time.Sleep(100 * time.Millisecond)
	p := a.peerFor(bAddr)
	if p.session.HasCurrentSession() {
		t.Error("a session was established despite mismatched PSKs")
	}
}

func TestEngine_CloseSession(t *testing.T) {
	a := newTestEngine(t, "shared-secret")

	var established sync.WaitGroup
	established.Add(1)
	var lost sync.WaitGroup
	lost.Add(1)
	var lostReason string

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
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop(context.Background())

	bAddr := b.conn.LocalAddr().String()
	aAddr := a.conn.LocalAddr().String()

	a.hooks.SessionLost = func(endpoint, reason string) {
		lostReason = reason
		lost.Done()
	}

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

	if err := a.CloseSession(bAddr); err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	waitOrTimeout(t, &lost, 2*time.Second, "session-lost notification")
	if lostReason != "manual_termination" {
		t.Errorf("session-lost reason = %q, want %q", lostReason, "manual_termination")
	}

	if err := a.CloseSession(bAddr); !errors.Is(err, util.ErrNoSessionForHost) {
		t.Errorf("CloseSession() on an already-closed session = %v, want %v", err, util.ErrNoSessionForHost)
	}
}

func TestEngine_CloseSession_NoSession(t *testing.T) {
	a := newTestEngine(t, "shared-secret")
	if err := a.CloseSession("203.0.113.1:12000"); !errors.Is(err, util.ErrNoSessionForHost) {
		t.Errorf("CloseSession() without a session = %v, want %v", err, util.ErrNoSessionForHost)
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration, what string) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for %s", what)
	}
}
