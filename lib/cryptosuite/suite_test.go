package cryptosuite

import "testing"

func TestCipherSuite_String(t *testing.T) {
	tests := []struct {
		suite    CipherSuite
		expected string
	}{
		{SuiteECDHERSAAES128GCMSHA256, "ECDHE-RSA-AES128-GCM-SHA256"},
		{SuiteECDHERSAAES256GCMSHA384, "ECDHE-RSA-AES256-GCM-SHA384"},
		{CipherSuite(99), "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.suite.String(); got != tt.expected {
				t.Errorf("CipherSuite.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCipherSuite_KeySize(t *testing.T) {
	if got := SuiteECDHERSAAES128GCMSHA256.KeySize(); got != 16 {
		t.Errorf("128-bit suite key size = %d, want 16", got)
	}
	if got := SuiteECDHERSAAES256GCMSHA384.KeySize(); got != 32 {
		t.Errorf("256-bit suite key size = %d, want 32", got)
	}
	if got := SuiteUnsupported.KeySize(); got != 0 {
		t.Errorf("unsupported suite key size = %d, want 0", got)
	}
}

func TestCipherSuite_DigestAlgorithm(t *testing.T) {
	// Per spec §4.1/§11: SHA-256 except the 256-bit AES suite, which
	// is pinned to SHA-384.
	h256 := SuiteECDHERSAAES128GCMSHA256.NewDigest()()
	if h256.Size() != 32 {
		t.Errorf("128-bit suite digest size = %d, want 32", h256.Size())
	}
	h384 := SuiteECDHERSAAES256GCMSHA384.NewDigest()()
	if h384.Size() != 48 {
		t.Errorf("256-bit suite digest size = %d, want 48", h384.Size())
	}
}

func TestCipherSuite_AEAD(t *testing.T) {
	key := make([]byte, 16)
	aead, err := SuiteECDHERSAAES128GCMSHA256.AEAD(key)
	if err != nil {
		t.Fatalf("AEAD() error = %v", err)
	}
	if aead.Overhead() != 16 {
		t.Errorf("AEAD tag size = %d, want 16", aead.Overhead())
	}
	if aead.NonceSize() != NonceSize {
		t.Errorf("AEAD nonce size = %d, want %d", aead.NonceSize(), NonceSize)
	}

	if _, err := SuiteECDHERSAAES128GCMSHA256.AEAD(make([]byte, 32)); err == nil {
		t.Error("AEAD() with wrong key length should fail")
	}
}
