package fscp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/freelan-go/fscp/lib/codec"
	"github.com/freelan-go/fscp/lib/identity"
	"github.com/freelan-go/fscp/lib/peer"
	"github.com/freelan-go/fscp/lib/util"
)

// Engine is the secure channel protocol engine: it owns one UDP
// socket, the per-peer session table, and the handshake state
// machine, and exposes an async/sync public API to embedders.
type Engine struct {
	config  Config
	hooks   *Hooks
	log     *logrus.Logger
	localID [32]byte

	conn net.PacketConn

	helloLimiter        *rateLimiter
	presentationLimiter *rateLimiter

	presentations *identity.PresentationStore
	contacts      *contactBook

	mu    sync.RWMutex
	peers map[string]*peerState

	greetsMu sync.Mutex
	greets   map[greetKey]*greetRequest

	// writes is the socket actor's queue: every outgoing datagram,
	// from any goroutine, is serialized through this channel so the
	// UDP socket itself is only ever touched by runWriter.
	writes chan writeRequest

	// inbox is the engine actor's queue: incoming datagrams and
	// timer-driven housekeeping are serialized through it so per-peer
	// state transitions never race each other.
	inbox chan func()

	helloCounter atomic.Uint32

	closing  chan struct{}
	closed   atomic.Bool
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
	stopErr  error
}

type greetKey struct {
	endpoint string
	number   uint32
}

type greetRequest struct {
	timer    *time.Timer
	done     chan struct{}
	doneOnce sync.Once
	sentAt   time.Time
	result   error
	rtt      time.Duration
}

type writeRequest struct {
	addr net.Addr
	data []byte
}

// New constructs an Engine from cfg, validating and defaulting it.
// The engine does not start listening until Start is called.
func New(cfg Config, hooks *Hooks) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logrus.New()
	e := &Engine{
		config:              cfg,
		hooks:               hooks,
		log:                 log,
		localID:             hostIdentifier(cfg.Identity),
		helloLimiter:        newRateLimiter(cfg.MaxHelloPer10s),
		presentationLimiter: newRateLimiter(cfg.MaxHelloPer10s),
		presentations:       identity.NewPresentationStore(),
		contacts:            newContactBook(),
		peers:               make(map[string]*peerState),
		greets:              make(map[greetKey]*greetRequest),
		writes:              make(chan writeRequest, 256),
		inbox:               make(chan func(), 256),
		closing:             make(chan struct{}),
		done:                make(chan struct{}),
	}
	return e, nil
}

// Logger returns the engine's structured logger, for an embedder that
// wants to attach hooks or adjust its level/output.
func (e *Engine) Logger() *logrus.Logger { return e.log }

// Start binds the UDP socket and launches the engine's goroutines. It
// returns once the socket is bound; processing continues in the
// background until ctx is cancelled or Stop is called. A goroutine
// watches ctx and calls Stop(context.Background()) on cancellation, so
// callers that only need ctx-based shutdown never have to call Stop
// themselves.
func (e *Engine) Start(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", e.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("fscp: listen: %w", err)
	}
	e.conn = conn

	e.wg.Add(4)
	go e.runReader()
	go e.runWriter()
	go e.runInbox()
	go e.runTimers()

	go func() {
		select {
		case <-ctx.Done():
			e.Stop(context.Background())
		case <-e.closing:
		}
	}()

	e.log.WithFields(logrus.Fields{
		"addr":    conn.LocalAddr().String(),
		"host_id": hostIDHex(e.localID),
	}).Info("fscp engine started")
	return nil
}

// Stop closes the socket and cancels all pending greets, keep-alive
// timers, and queued writes. It blocks until every goroutine exits.
// It is idempotent: calling it more than once, or after ctx-driven
// shutdown already ran, is a no-op that returns the same result.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		<-e.done
		return e.stopErr
	}
	close(e.closing)
	if e.conn != nil {
		e.conn.Close()
	}

	e.greetsMu.Lock()
	for key, g := range e.greets {
		g.complete(util.ErrServerOffline, 0)
		delete(e.greets, key)
	}
	e.greetsMu.Unlock()

	e.wg.Wait()
	e.doneOnce.Do(func() { close(e.done) })
	return nil
}

// Wait blocks until the engine has fully stopped, returning the error
// Stop completed with.
func (e *Engine) Wait() error {
	<-e.done
	return e.stopErr
}

// Running reports whether the engine is currently accepting traffic.
func (e *Engine) Running() bool {
	return !e.closed.Load()
}

func (e *Engine) runReader() {
	defer e.wg.Done()
	buf := make([]byte, codec.MaxDatagramSize)
	for {
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			if e.closed.Load() {
				return
			}
			e.log.WithError(err).Warn("fscp socket read error")
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		endpoint := addr.String()
		select {
		case e.inbox <- func() { e.handleDatagram(endpoint, addr, datagram) }:
		case <-e.closing:
			return
		}
	}
}

func (e *Engine) runWriter() {
	defer e.wg.Done()
	for {
		select {
		case req := <-e.writes:
			if _, err := e.conn.WriteTo(req.data, req.addr); err != nil && !e.closed.Load() {
				e.log.WithError(err).WithField("to", req.addr.String()).Warn("fscp socket write error")
			}
		case <-e.closing:
			return
		}
	}
}

func (e *Engine) runInbox() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.inbox:
			fn()
		case <-e.closing:
			return
		}
	}
}

func (e *Engine) runTimers() {
	defer e.wg.Done()
	keepAlive := time.NewTicker(e.config.KeepAlivePeriod)
	rateLimitReset := time.NewTicker(DefaultRateLimitWindow)
	defer keepAlive.Stop()
	defer rateLimitReset.Stop()

	for {
		select {
		case <-keepAlive.C:
			e.postToInbox(e.onKeepAliveTick)
		case <-rateLimitReset.C:
			e.helloLimiter.resetAll()
			e.presentationLimiter.resetAll()
		case <-e.closing:
			return
		}
	}
}

// postToInbox enqueues fn on the engine actor, dropping it silently
// if the engine is already closing.
func (e *Engine) postToInbox(fn func()) {
	select {
	case e.inbox <- fn:
	case <-e.closing:
	}
}

func (e *Engine) send(addr net.Addr, data []byte) {
	select {
	case e.writes <- writeRequest{addr: addr, data: data}:
	case <-e.closing:
	}
}

// peerFor returns the peerState for endpoint, creating it if it does
// not exist yet — a peer-session is born on first contact in either
// direction.
func (e *Engine) peerFor(endpoint string) *peerState {
	e.mu.RLock()
	p, ok := e.peers[endpoint]
	e.mu.RUnlock()
	if ok {
		return p
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.peers[endpoint]; ok {
		return p
	}
	p = newPeerState(endpoint, e.localID)
	e.peers[endpoint] = p
	return p
}

func (g *greetRequest) complete(err error, rtt time.Duration) {
	g.doneOnce.Do(func() {
		g.result = err
		g.rtt = rtt
		if g.timer != nil {
			g.timer.Stop()
		}
		close(g.done)
	})
}

func nextHelloNumber(e *Engine) uint32 {
	return e.helloCounter.Add(1)
}

func hostIDHex(id [32]byte) string {
	return fmt.Sprintf("%x", id[:8])
}
