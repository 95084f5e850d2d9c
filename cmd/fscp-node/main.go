// Command fscp-node runs a standalone secure channel protocol engine,
// bridging an ethernet switch and an IP router across whatever peers
// it is told to greet.
//
// Usage:
//
//	fscp-node [flags]
//
// Flags:
//
//	-listen string   UDP listen address (default ":12000")
//	-peer string     peer to greet and request a session with on start
//	-psk string      pre-shared key for PSK-only authentication
//	-upnp            attempt a UPnP port mapping for -listen's port
//	-debug           enable debug logging
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"flag"
	"fmt"
	"math/big"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/fscp"
	"github.com/freelan-go/fscp/lib/identity"
	"github.com/freelan-go/fscp/lib/iprouter"
	"github.com/freelan-go/fscp/lib/nat"
	"github.com/freelan-go/fscp/lib/switchboard"
)

// ethernetChannel and ipChannel split the 16 DATA channels between the
// two frame kinds a node bridges: learning-switch ethernet frames and
// router-dispatched IP packets.
const (
	ethernetChannel = 0
	ipChannel       = 1
)

// bridge hands decrypted DATA payloads from every peer to a switchboard.Switch
// and an iprouter.Router, and turns their forwarding decisions back into
// outbound SendData calls — the glue between the secure channel engine and
// the two frame-forwarding components it carries traffic for.
type bridge struct {
	engine *fscp.Engine
	sw     *switchboard.Switch
	router *iprouter.Router
	log    *logrus.Logger

	mu         sync.Mutex
	nextPort   uint32
	endpointOf map[uint32]string
	portOf     map[string]uint32
}

func newBridge(engine *fscp.Engine, sw *switchboard.Switch, router *iprouter.Router, log *logrus.Logger) *bridge {
	return &bridge{
		engine:     engine,
		sw:         sw,
		router:     router,
		log:        log,
		endpointOf: make(map[uint32]string),
		portOf:     make(map[string]uint32),
	}
}

// portFor returns the stable port assigned to endpoint, allocating and
// registering a new one with the switch on first sight. The router is
// not given any prefixes for the port here.
func (b *bridge) portFor(endpoint string) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if port, ok := b.portOf[endpoint]; ok {
		return port
	}
	b.nextPort++
	port := b.nextPort
	b.portOf[endpoint] = port
	b.endpointOf[port] = endpoint
	b.sw.RegisterPort(switchboard.PortID(port), "")
	return port
}

func (b *bridge) endpointFor(port switchboard.PortID) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	endpoint, ok := b.endpointOf[uint32(port)]
	return endpoint, ok
}

func (b *bridge) forget(endpoint string) {
	b.mu.Lock()
	port, ok := b.portOf[endpoint]
	if ok {
		delete(b.portOf, endpoint)
		delete(b.endpointOf, port)
	}
	b.mu.Unlock()
	if ok {
		b.sw.UnregisterPort(switchboard.PortID(port))
		b.router.UnregisterPort(iprouter.PortID(port))
	}
}

// onData is installed as the engine's DataReceived hook. It interprets
// channel 0 as a learned ethernet frame and channel 1 as a routed IP
// packet, and forwards each through the matching component.
func (b *bridge) onData(endpoint string, channel int, payload []byte) {
	ingress := switchboard.PortID(b.portFor(endpoint))
	switch channel {
	case ethernetChannel:
		if errs := b.sw.Deliver(switchWriter{b}, ingress, payload); len(errs) > 0 {
			b.log.WithField("peer", endpoint).WithField("errors", len(errs)).Debug("ethernet forward had errors")
		}
	case ipChannel:
		b.routeIP(payload)
	}
}

// routeIP resolves the packet's destination address and, if a route
// matches, re-encrypts and sends it to the peer behind that route's port.
func (b *bridge) routeIP(packet []byte) {
	dst, ok := destinationOf(packet)
	if !ok {
		return
	}
	port, ok := b.router.Route(dst)
	if !ok {
		return
	}
	endpoint, ok := b.endpointFor(port)
	if !ok {
		return
	}
	if err := b.engine.SendData(endpoint, ipChannel, packet); err != nil {
		b.log.WithField("peer", endpoint).WithError(err).Debug("ip forward failed")
	}
}

// destinationOf reads the destination address out of an IPv4 or IPv6
// packet header, identified by its leading version nibble.
func destinationOf(packet []byte) (netip.Addr, bool) {
	if len(packet) < 1 {
		return netip.Addr{}, false
	}
	switch packet[0] >> 4 {
	case 4:
		if len(packet) < 20 {
			return netip.Addr{}, false
		}
		addr, ok := netip.AddrFromSlice(packet[16:20])
		return addr, ok
	case 6:
		if len(packet) < 40 {
			return netip.Addr{}, false
		}
		addr, ok := netip.AddrFromSlice(packet[24:40])
		return addr, ok
	default:
		return netip.Addr{}, false
	}
}

// switchWriter adapts bridge to switchboard.Writer, turning a forwarding
// decision for a port back into an encrypted send to that port's endpoint.
type switchWriter struct{ b *bridge }

func (w switchWriter) Write(port switchboard.PortID, frame []byte) error {
	endpoint, ok := w.b.endpointFor(port)
	if !ok {
		return fmt.Errorf("fscp-node: no endpoint registered for port %d", port)
	}
	return w.b.engine.SendData(endpoint, ethernetChannel, frame)
}

var (
	// Version is set at build time via ldflags.
	Version = "dev"
)

// config holds the node's command-line configuration.
type config struct {
	ListenAddr string
	PeerAddr   string
	PSK        string
	UPnP       bool
	Debug      bool
}

func main() {
	cfg := parseFlags()

	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	log.WithField("version", Version).Info("starting fscp node")

	id, err := buildIdentity(cfg.PSK)
	if err != nil {
		log.WithError(err).Fatal("failed to build local identity")
	}

	engineCfg := fscp.DefaultConfig()
	engineCfg.ListenAddress = cfg.ListenAddr
	engineCfg.Identity = id

	// br is filled in once the engine exists, but the hooks that reference
	// it must be installed at construction time; the indirection through a
	// pointer-to-pointer lets defaultHooks close over a not-yet-built bridge.
	var br *bridge
	engine, err := fscp.New(engineCfg, defaultHooks(log, &br))
	if err != nil {
		log.WithError(err).Fatal("failed to construct engine")
	}

	sw := switchboard.New(switchboard.Config{Method: switchboard.MethodSwitch, Capacity: 1024})
	router := iprouter.New()
	br = newBridge(engine, sw, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start engine")
	}
	log.WithField("addr", cfg.ListenAddr).Info("listening")

	var mapping *nat.Mapping
	if cfg.UPnP {
		if port, perr := listenPort(cfg.ListenAddr); perr == nil {
			m, merr := nat.Map(port, port, "fscp-node")
			if merr != nil {
				log.WithError(merr).Warn("UPnP port mapping failed, continuing without it")
			} else {
				mapping = m
				if ip, ierr := m.ExternalIP(); ierr == nil {
					log.WithField("external_ip", ip.String()).Info("UPnP port mapping active")
				}
			}
		}
	}

	if cfg.PeerAddr != "" {
		greetPeer(engine, cfg.PeerAddr, log)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("received shutdown signal")

	if mapping != nil {
		if err := mapping.Close(); err != nil {
			log.WithError(err).Warn("error removing UPnP port mapping")
		}
	}
	cancel()
	if err := engine.Wait(); err != nil {
		log.WithError(err).Warn("error stopping engine")
	}
	log.Info("fscp node stopped")
}

func greetPeer(engine *fscp.Engine, peerAddr string, log *logrus.Logger) {
	log.WithField("peer", peerAddr).Info("greeting peer")
	if err := engine.Greet(peerAddr, fscp.DefaultGreetTimeout, func(rtt time.Duration, err error) {
		if err != nil {
			log.WithField("peer", peerAddr).WithError(err).Warn("greet failed")
			return
		}
		log.WithField("peer", peerAddr).WithField("rtt", rtt).Info("greet succeeded")
		if ierr := engine.IntroduceTo(peerAddr); ierr != nil {
			log.WithError(ierr).Warn("failed to introduce ourselves")
			return
		}
		if serr := engine.RequestSession(peerAddr); serr != nil {
			log.WithError(serr).Warn("failed to request a session")
		}
	}); err != nil {
		log.WithError(err).Warn("failed to send greet")
	}
}

// defaultHooks logs every handshake event and, once *br is populated,
// drives the ethernet switch and IP router off session and data events:
// a new session registers the peer's port, a lost session withdraws it,
// and every decrypted DATA payload is handed to the bridge for forwarding.
func defaultHooks(log *logrus.Logger, br **bridge) *fscp.Hooks {
	return &fscp.Hooks{
		SessionEstablished: func(endpoint string, isNew bool, suite cryptosuite.CipherSuite, curve cryptosuite.EllipticCurve) {
			log.WithFields(logrus.Fields{"peer": endpoint, "new": isNew, "suite": suite, "curve": curve}).Info("session established")
			if *br != nil {
				(*br).portFor(endpoint)
			}
		},
		SessionLost: func(endpoint string, reason string) {
			log.WithFields(logrus.Fields{"peer": endpoint, "reason": reason}).Info("session lost")
			if *br != nil {
				(*br).forget(endpoint)
			}
		},
		DataReceived: func(endpoint string, channel int, payload []byte) {
			log.WithFields(logrus.Fields{"peer": endpoint, "channel": channel, "bytes": len(payload)}).Debug("data received")
			if *br != nil {
				(*br).onData(endpoint, channel, payload)
			}
		},
	}
}

func parseFlags() *config {
	cfg := &config{}
	flag.StringVar(&cfg.ListenAddr, "listen", ":12000", "UDP listen address")
	flag.StringVar(&cfg.PeerAddr, "peer", "", "peer to greet and request a session with on start")
	flag.StringVar(&cfg.PSK, "psk", "", "pre-shared key for PSK-only authentication")
	flag.BoolVar(&cfg.UPnP, "upnp", false, "attempt a UPnP port mapping for -listen's port")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fscp-node %s\n", Version)
		os.Exit(0)
	}
	return cfg
}

// buildIdentity returns a PSK-only identity when psk is set, or a
// throwaway self-signed ECDSA identity otherwise — good enough to
// bring an engine up for local testing without a real PKI.
func buildIdentity(psk string) (*identity.Store, error) {
	if psk != "" {
		return &identity.Store{PSK: []byte(psk)}, nil
	}

	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate throwaway key: %w", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "fscp-node throwaway identity"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, fmt.Errorf("create throwaway certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &identity.Store{Cert: cert, Signer: priv}, nil
}

// listenPort extracts the numeric port from a "host:port" or ":port"
// listen address, for handing to the UPnP mapper.
func listenPort(addr string) (uint16, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}
	return uint16(port), nil
}
