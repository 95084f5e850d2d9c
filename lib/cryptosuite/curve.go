package cryptosuite

import "crypto/ecdh"

// EllipticCurve identifies a named curve used for the ephemeral ECDHE
// key agreement. The wire value is a single byte (see the codec
// package).
type EllipticCurve byte

const (
	// CurveUnsupported marks a curve byte the receiver could not
	// resolve to a known curve. It is never advertised.
	CurveUnsupported EllipticCurve = iota
	// CurveSect571k1 is the sect571k1 binary Koblitz curve. No Go
	// standard-library equivalent exists (crypto/ecdh only exposes
	// NIST prime curves and X25519), so Available always reports
	// false for it; see the curve availability probe below.
	CurveSect571k1
	// CurveSecp384r1 is the secp384r1 / P-384 curve.
	CurveSecp384r1
	// CurveSecp521r1 is the secp521r1 / P-521 curve.
	CurveSecp521r1
)

// AllCurves lists every curve FSCP knows about, regardless of local
// availability. Use AvailableCurves for what this build can actually
// negotiate.
var AllCurves = []EllipticCurve{CurveSect571k1, CurveSecp384r1, CurveSecp521r1}

// String returns the canonical name of the curve.
func (c EllipticCurve) String() string {
	switch c {
	case CurveSect571k1:
		return "sect571k1"
	case CurveSecp384r1:
		return "secp384r1"
	case CurveSecp521r1:
		return "secp521r1"
	default:
		return "unsupported"
	}
}

// ecdhCurve returns the crypto/ecdh.Curve backing this curve, or nil
// if this build has no implementation for it.
func (c EllipticCurve) ecdhCurve() ecdh.Curve {
	switch c {
	case CurveSecp384r1:
		return ecdh.P384()
	case CurveSecp521r1:
		return ecdh.P521()
	default:
		// sect571k1 has no crypto/ecdh implementation.
		return nil
	}
}

// Available reports whether this build can generate keys and perform
// agreement on the curve. Probed once at engine construction per spec
// §3 ("the engine probes curve availability and drops unsupported
// ones from its advertised capabilities").
func (c EllipticCurve) Available() bool {
	return c.ecdhCurve() != nil
}

// AvailableCurves returns the subset of AllCurves this build supports,
// in the same preference order. The engine advertises only these.
func AvailableCurves() []EllipticCurve {
	out := make([]EllipticCurve, 0, len(AllCurves))
	for _, c := range AllCurves {
		if c.Available() {
			out = append(out, c)
		}
	}
	return out
}

// GenerateKey creates a fresh ephemeral ECDHE key pair on the curve,
// using rand as the entropy source. The private key must never be
// reused across sessions.
func (c EllipticCurve) GenerateKey(rand interface {
	Read(p []byte) (n int, err error)
}) (*ecdh.PrivateKey, error) {
	curve := c.ecdhCurve()
	if curve == nil {
		return nil, errUnsupportedCurve(c)
	}
	return curve.GenerateKey(rand)
}

// ParsePublicKey decodes a peer's raw ECDHE public key bytes for this
// curve.
func (c EllipticCurve) ParsePublicKey(data []byte) (*ecdh.PublicKey, error) {
	curve := c.ecdhCurve()
	if curve == nil {
		return nil, errUnsupportedCurve(c)
	}
	return curve.NewPublicKey(data)
}

func errUnsupportedCurve(c EllipticCurve) error {
	return &unsupportedCurveError{curve: c}
}

type unsupportedCurveError struct {
	curve EllipticCurve
}

func (e *unsupportedCurveError) Error() string {
	return "cryptosuite: unsupported curve: " + e.curve.String()
}
