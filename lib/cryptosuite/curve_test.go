package cryptosuite

import (
	"crypto/rand"
	"testing"
)

func TestEllipticCurve_Available(t *testing.T) {
	tests := []struct {
		curve     EllipticCurve
		available bool
	}{
		// sect571k1 has no crypto/ecdh implementation in this build.
		{CurveSect571k1, false},
		{CurveSecp384r1, true},
		{CurveSecp521r1, true},
	}

	for _, tt := range tests {
		t.Run(tt.curve.String(), func(t *testing.T) {
			if got := tt.curve.Available(); got != tt.available {
				t.Errorf("Available() = %v, want %v", got, tt.available)
			}
		})
	}
}

func TestAvailableCurves_DropsUnsupported(t *testing.T) {
	curves := AvailableCurves()
	for _, c := range curves {
		if c == CurveSect571k1 {
			t.Error("AvailableCurves() should never advertise sect571k1")
		}
	}
	if len(curves) != 2 {
		t.Errorf("AvailableCurves() = %d curves, want 2", len(curves))
	}
}

func TestEllipticCurve_GenerateKeyAndAgree(t *testing.T) {
	for _, c := range AvailableCurves() {
		t.Run(c.String(), func(t *testing.T) {
			alicePriv, err := c.GenerateKey(rand.Reader)
			if err != nil {
				t.Fatalf("GenerateKey() error = %v", err)
			}
			bobPriv, err := c.GenerateKey(rand.Reader)
			if err != nil {
				t.Fatalf("GenerateKey() error = %v", err)
			}

			bobPub, err := c.ParsePublicKey(bobPriv.PublicKey().Bytes())
			if err != nil {
				t.Fatalf("ParsePublicKey() error = %v", err)
			}

			secretA, err := alicePriv.ECDH(bobPub)
			if err != nil {
				t.Fatalf("ECDH() error = %v", err)
			}

			alicePub, err := c.ParsePublicKey(alicePriv.PublicKey().Bytes())
			if err != nil {
				t.Fatalf("ParsePublicKey() error = %v", err)
			}
			secretB, err := bobPriv.ECDH(alicePub)
			if err != nil {
				t.Fatalf("ECDH() error = %v", err)
			}

			if string(secretA) != string(secretB) {
				t.Error("ECDHE shared secrets do not match")
			}
		})
	}
}

func TestEllipticCurve_UnsupportedCurveErrors(t *testing.T) {
	if _, err := CurveSect571k1.GenerateKey(rand.Reader); err == nil {
		t.Error("GenerateKey() on sect571k1 should fail in this build")
	}
	if _, err := CurveSect571k1.ParsePublicKey(make([]byte, 72)); err == nil {
		t.Error("ParsePublicKey() on sect571k1 should fail in this build")
	}
}
