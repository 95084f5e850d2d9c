package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/freelan-go/fscp/lib/cryptosuite"
	"github.com/freelan-go/fscp/lib/util"
)

func TestMessageType_String(t *testing.T) {
	tests := []struct {
		t    MessageType
		want string
	}{
		{HelloRequest, "HELLO_REQUEST"},
		{SessionRequest, "SESSION_REQUEST"},
		{DataChannel(0), "DATA_0"},
		{DataChannel(15), "DATA_15"},
		{ContactRequest, "CONTACT_REQUEST"},
		{Contact, "CONTACT"},
		{KeepAlive, "KEEP_ALIVE"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("MessageType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestMessageType_IsData(t *testing.T) {
	for _, mt := range []MessageType{DataChannel(0), DataChannel(15), ContactRequest, Contact, KeepAlive} {
		if !mt.IsData() {
			t.Errorf("%v.IsData() = false, want true", mt)
		}
	}
	for _, mt := range []MessageType{HelloRequest, Presentation, SessionRequest, Session} {
		if mt.IsData() {
			t.Errorf("%v.IsData() = true, want false", mt)
		}
	}
}

func TestHeader_RoundTrip(t *testing.T) {
	buf := make([]byte, HeaderSize)
	if err := PutHeader(buf, Header{Version: ProtocolVersion, Type: KeepAlive, Length: 42}); err != nil {
		t.Fatalf("PutHeader() error = %v", err)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.Version != ProtocolVersion || h.Type != KeepAlive || h.Length != 42 {
		t.Errorf("ParseHeader() = %+v", h)
	}
}

func TestParseHeader_RejectsWrongVersion(t *testing.T) {
	buf := []byte{ProtocolVersion + 1, byte(HelloRequest), 0, 0}
	if _, err := ParseHeader(buf); err == nil {
		t.Error("ParseHeader() should reject an unknown protocol version")
	}
}

func TestParseHeader_RejectsShortBuffer(t *testing.T) {
	if _, err := ParseHeader([]byte{1, 2}); err == nil {
		t.Error("ParseHeader() should reject a truncated header")
	}
}

func TestHello_RoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	n, err := EncodeHello(buf, false, 0xDEADBEEF)
	if err != nil {
		t.Fatalf("EncodeHello() error = %v", err)
	}
	h, err := ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if h.Type != HelloRequest {
		t.Fatalf("header type = %v, want HELLO_REQUEST", h.Type)
	}
	got, err := DecodeHello(h, buf[:n])
	if err != nil {
		t.Fatalf("DecodeHello() error = %v", err)
	}
	if got != 0xDEADBEEF {
		t.Errorf("DecodeHello() = 0x%x, want 0xDEADBEEF", got)
	}
}

func TestEncodeHello_BufferTooSmall(t *testing.T) {
	buf := make([]byte, 2)
	if _, err := EncodeHello(buf, false, 1); !errors.Is(err, util.ErrBufferTooSmall) {
		t.Errorf("EncodeHello() error = %v, want ErrBufferTooSmall", err)
	}
}

func TestPresentation_RoundTrip(t *testing.T) {
	cert := []byte("a fake DER certificate")
	buf := make([]byte, 128)
	n, err := EncodePresentation(buf, cert)
	if err != nil {
		t.Fatalf("EncodePresentation() error = %v", err)
	}
	h, err := ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	got, err := DecodePresentation(h, buf[:n])
	if err != nil {
		t.Fatalf("DecodePresentation() error = %v", err)
	}
	if !bytes.Equal(got, cert) {
		t.Errorf("DecodePresentation() = %q, want %q", got, cert)
	}
}

func TestPresentation_EmptyCertForPSKOnlyPeer(t *testing.T) {
	buf := make([]byte, 16)
	n, err := EncodePresentation(buf, nil)
	if err != nil {
		t.Fatalf("EncodePresentation() error = %v", err)
	}
	h, err := ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	got, err := DecodePresentation(h, buf[:n])
	if err != nil {
		t.Fatalf("DecodePresentation() error = %v", err)
	}
	if got != nil {
		t.Errorf("DecodePresentation() = %q, want nil", got)
	}
}

func TestSessionRequest_RoundTrip(t *testing.T) {
	req := SessionRequestPayload{
		SessionNumber: 7,
		CipherSuites:  []cryptosuite.CipherSuite{cryptosuite.SuiteECDHERSAAES256GCMSHA384, cryptosuite.SuiteECDHERSAAES128GCMSHA256},
		Curves:        []cryptosuite.EllipticCurve{cryptosuite.CurveSecp521r1, cryptosuite.CurveSecp384r1},
		Signature:     []byte("a signature over the fields above"),
	}
	for i := range req.HostID {
		req.HostID[i] = byte(i)
	}

	buf := make([]byte, 256)
	n, err := EncodeSessionRequest(buf, req)
	if err != nil {
		t.Fatalf("EncodeSessionRequest() error = %v", err)
	}
	h, err := ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	got, err := DecodeSessionRequest(h, buf[:n])
	if err != nil {
		t.Fatalf("DecodeSessionRequest() error = %v", err)
	}

	if got.SessionNumber != req.SessionNumber {
		t.Errorf("SessionNumber = %d, want %d", got.SessionNumber, req.SessionNumber)
	}
	if got.HostID != req.HostID {
		t.Errorf("HostID = %v, want %v", got.HostID, req.HostID)
	}
	if len(got.CipherSuites) != len(req.CipherSuites) || got.CipherSuites[0] != req.CipherSuites[0] {
		t.Errorf("CipherSuites = %v, want %v", got.CipherSuites, req.CipherSuites)
	}
	if len(got.Curves) != len(req.Curves) || got.Curves[0] != req.Curves[0] {
		t.Errorf("Curves = %v, want %v", got.Curves, req.Curves)
	}
	if !bytes.Equal(got.Signature, req.Signature) {
		t.Errorf("Signature = %q, want %q", got.Signature, req.Signature)
	}
}

func TestSession_RoundTrip(t *testing.T) {
	s := SessionPayload{
		SessionNumber: 11,
		CipherSuite:   cryptosuite.SuiteECDHERSAAES256GCMSHA384,
		Curve:         cryptosuite.CurveSecp521r1,
		PublicKey:     bytes.Repeat([]byte{0xAB}, 133),
		Signature:     []byte("session signature"),
	}
	for i := range s.HostID {
		s.HostID[i] = byte(32 - i)
	}
	for i := range s.NoncePrefix {
		s.NoncePrefix[i] = byte(i + 1)
	}

	buf := make([]byte, 512)
	n, err := EncodeSession(buf, s)
	if err != nil {
		t.Fatalf("EncodeSession() error = %v", err)
	}
	h, err := ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	got, err := DecodeSession(h, buf[:n])
	if err != nil {
		t.Fatalf("DecodeSession() error = %v", err)
	}

	if got.SessionNumber != s.SessionNumber || got.CipherSuite != s.CipherSuite || got.Curve != s.Curve {
		t.Errorf("DecodeSession() = %+v, want matching fields from %+v", got, s)
	}
	if got.NoncePrefix != s.NoncePrefix {
		t.Errorf("NoncePrefix = %v, want %v", got.NoncePrefix, s.NoncePrefix)
	}
	if !bytes.Equal(got.PublicKey, s.PublicKey) {
		t.Errorf("PublicKey = %x, want %x", got.PublicKey, s.PublicKey)
	}
	if !bytes.Equal(got.Signature, s.Signature) {
		t.Errorf("Signature = %q, want %q", got.Signature, s.Signature)
	}
}

func TestData_RoundTrip(t *testing.T) {
	for _, mt := range []MessageType{DataChannel(0), DataChannel(15), ContactRequest, Contact, KeepAlive} {
		t.Run(mt.String(), func(t *testing.T) {
			payload := DataPayload{
				SequenceNumber: 99,
				Ciphertext:     []byte("encrypted frame bytes"),
			}
			copy(payload.Tag[:], bytes.Repeat([]byte{0x42}, TagSize))

			buf := make([]byte, 256)
			n, err := EncodeData(buf, mt, payload)
			if err != nil {
				t.Fatalf("EncodeData() error = %v", err)
			}
			h, err := ParseHeader(buf[:n])
			if err != nil {
				t.Fatalf("ParseHeader() error = %v", err)
			}
			got, err := DecodeData(h, buf[:n])
			if err != nil {
				t.Fatalf("DecodeData() error = %v", err)
			}
			if got.SequenceNumber != payload.SequenceNumber {
				t.Errorf("SequenceNumber = %d, want %d", got.SequenceNumber, payload.SequenceNumber)
			}
			if got.Tag != payload.Tag {
				t.Errorf("Tag = %v, want %v", got.Tag, payload.Tag)
			}
			if !bytes.Equal(got.Ciphertext, payload.Ciphertext) {
				t.Errorf("Ciphertext = %q, want %q", got.Ciphertext, payload.Ciphertext)
			}
		})
	}
}

func TestEncodeData_RejectsNonDataType(t *testing.T) {
	buf := make([]byte, 64)
	if _, err := EncodeData(buf, HelloRequest, DataPayload{}); err == nil {
		t.Error("EncodeData() with a non-data message type should fail")
	}
}

func TestDecode_RejectsTruncatedLengthField(t *testing.T) {
	buf := make([]byte, HeaderSize+2)
	PutHeader(buf, Header{Version: ProtocolVersion, Type: Presentation, Length: 10})
	h, err := ParseHeader(buf)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if _, err := DecodePresentation(h, buf); err == nil {
		t.Error("DecodePresentation() should reject a length/payload mismatch")
	}
}
