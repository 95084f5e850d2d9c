// Package fscp implements the secure channel protocol engine: the
// UDP-bound handshake state machine, per-peer session bookkeeping,
// and the async/sync public API used to drive it.
package fscp

import (
	"time"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/identity"
)

// Default timing constants, named after their spec counterparts.
const (
	DefaultKeepAlivePeriod  = 10 * time.Second
	DefaultSessionTimeout   = 3 * DefaultKeepAlivePeriod
	DefaultGreetTimeout     = 3 * time.Second
	DefaultMaxHelloPer10s   = 10
	DefaultRateLimitWindow  = 10 * time.Second
	DefaultMaxDatagramBytes = 65536
)

// Config configures an Engine.
type Config struct {
	// ListenAddress is the local UDP address to bind, e.g. "0.0.0.0:12000".
	ListenAddress string

	// Identity is the local signing identity. Must be Usable().
	Identity *identity.Store

	// CipherSuites is the set of suites advertised during negotiation,
	// in preference order. Empty uses cryptosuite.AllSuites.
	CipherSuites []cryptosuite.CipherSuite

	// Curves is the set of curves advertised during negotiation, in
	// preference order. Empty uses every curve cryptosuite reports
	// Available() on this build.
	Curves []cryptosuite.EllipticCurve

	KeepAlivePeriod time.Duration
	SessionTimeout  time.Duration
	MaxHelloPer10s  int

	// RelayModeEnabled is not read by the engine; flooding across peer
	// group boundaries is set by switchboard.Config.Relay on the switch
	// an embedder builds.
	RelayModeEnabled bool
}

// DefaultConfig returns a Config with every optional field at its
// spec-default value. ListenAddress and Identity are left unset.
func DefaultConfig() Config {
	return Config{
		CipherSuites:    cryptosuite.AllSuites,
		Curves:          cryptosuite.AvailableCurves(),
		KeepAlivePeriod: DefaultKeepAlivePeriod,
		SessionTimeout:  DefaultSessionTimeout,
		MaxHelloPer10s:  DefaultMaxHelloPer10s,
	}
}

// Validate fills in any zero-valued optional fields with their
// defaults and rejects a configuration that cannot run.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return errConfig("listen address is required")
	}
	if !c.Identity.Usable() {
		return errConfig("identity must carry a certificate or a PSK")
	}
	if len(c.CipherSuites) == 0 {
		c.CipherSuites = cryptosuite.AllSuites
	}
	if len(c.Curves) == 0 {
		c.Curves = cryptosuite.AvailableCurves()
	}
	if len(c.Curves) == 0 {
		return errConfig("no elliptic curve is available on this build")
	}
	if c.KeepAlivePeriod <= 0 {
		c.KeepAlivePeriod = DefaultKeepAlivePeriod
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 3 * c.KeepAlivePeriod
	}
	if c.MaxHelloPer10s <= 0 {
		c.MaxHelloPer10s = DefaultMaxHelloPer10s
	}
	return nil
}

type configError string

func errConfig(msg string) error { return configError(msg) }
func (e configError) Error() string { return "fscp: invalid config: " + string(e) }
