// Package util provides error types shared across the FSCP core packages.
package util

import (
	"errors"
	"fmt"
)

// Sentinel errors for FSCP operations. Callers should use errors.Is to
// test for these rather than comparing error strings.
var (
	// ErrServerOffline indicates the engine has been closed.
	ErrServerOffline = errors.New("fscp: engine is offline")

	// ErrSessionAlreadyExists indicates a RequestSession call for a peer
	// that already has an active current session.
	ErrSessionAlreadyExists = errors.New("fscp: session already exists")

	// ErrNoSessionForHost indicates an operation required an active
	// current session and none exists for the given endpoint.
	ErrNoSessionForHost = errors.New("fscp: no session for host")

	// ErrHelloTimedOut indicates a greet request's timeout elapsed
	// before a HELLO_RESPONSE arrived.
	ErrHelloTimedOut = errors.New("fscp: hello request timed out")

	// ErrMalformedMessage indicates incoming bytes failed to parse or
	// failed signature verification.
	ErrMalformedMessage = errors.New("fscp: malformed message")

	// ErrBufferTooSmall indicates an encode destination could not hold
	// the framed message.
	ErrBufferTooSmall = errors.New("fscp: buffer too small")

	// ErrNoIdentity indicates an operation that signs a message was
	// attempted without a usable private key or PSK.
	ErrNoIdentity = errors.New("fscp: no usable signing identity")

	// ErrUnsupportedCipherSuite indicates negotiation could not agree
	// on a common cipher suite or curve.
	ErrUnsupportedCipherSuite = errors.New("fscp: unsupported cipher suite")

	// ErrSessionClosed indicates the peer session has been cleared.
	ErrSessionClosed = errors.New("fscp: session closed")
)

// PeerError wraps an error with the remote endpoint and operation during
// which it occurred. The engine's own operations and completion
// callbacks return the sentinel errors above unwrapped, not PeerError.
type PeerError struct {
	Endpoint  string // The remote endpoint, as a string (host:port)
	Operation string // The operation being performed (e.g. "greet", "send_data")
	Err       error  // The underlying error
}

// NewPeerError creates a new PeerError with context.
func NewPeerError(endpoint, operation string, err error) *PeerError {
	return &PeerError{
		Endpoint:  endpoint,
		Operation: operation,
		Err:       err,
	}
}

// Error implements the error interface.
func (e *PeerError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *PeerError) Unwrap() error {
	return e.Err
}

// CodecError wraps a codec failure with the message type it occurred on.
type CodecError struct {
	MessageType string
	Err         error
}

// NewCodecError creates a new CodecError with context.
func NewCodecError(messageType string, err error) *CodecError {
	return &CodecError{MessageType: messageType, Err: err}
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: %v", e.MessageType, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As support.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error represents a condition that may
// succeed if the caller retries the operation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrHelloTimedOut)
}

// IsPermanent returns true if the error represents a permanent failure
// that will not succeed on retry.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrMalformedMessage),
		errors.Is(err, ErrUnsupportedCipherSuite),
		errors.Is(err, ErrNoIdentity):
		return true
	default:
		return false
	}
}
