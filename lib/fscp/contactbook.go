package fscp

import (
	"crypto/x509"
	"encoding/binary"
	"net"
	"sync"

	"github.com/freelan-go/fscp/lib/codec"
	"github.com/freelan-go/fscp/lib/cryptosuite"
)

// contactBook maps a certificate hash to the endpoint it was last
// observed at, serving CONTACT_REQUEST/CONTACT exchanges between
// peers that want to introduce each other.
type contactBook struct {
	mu      sync.RWMutex
	entries map[[32]byte]string
}

func newContactBook() *contactBook {
	return &contactBook{entries: make(map[[32]byte]string)}
}

func (c *contactBook) learn(hash [32]byte, endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hash] = endpoint
}

func (c *contactBook) lookup(hash [32]byte) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ep, ok := c.entries[hash]
	return ep, ok
}

// encodeContactRequest lays out a CONTACT_REQUEST's plaintext payload:
// a count followed by that many 32-byte certificate hashes.
func encodeContactRequest(hashes [][32]byte) []byte {
	buf := make([]byte, 2+32*len(hashes))
	binary.BigEndian.PutUint16(buf, uint16(len(hashes)))
	off := 2
	for _, h := range hashes {
		copy(buf[off:], h[:])
		off += 32
	}
	return buf
}

func decodeContactRequest(payload []byte) ([][32]byte, error) {
	if len(payload) < 2 {
		return nil, errShortContactMessage
	}
	count := int(binary.BigEndian.Uint16(payload))
	off := 2
	if len(payload) != off+32*count {
		return nil, errShortContactMessage
	}
	hashes := make([][32]byte, count)
	for i := 0; i < count; i++ {
		copy(hashes[i][:], payload[off:off+32])
		off += 32
	}
	return hashes, nil
}

// encodeContact lays out a CONTACT's plaintext payload: a count
// followed by that many (32-byte hash, length-prefixed endpoint) pairs.
func encodeContact(entries map[[32]byte]string) []byte {
	size := 2
	for _, ep := range entries {
		size += 32 + 2 + len(ep)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf, uint16(len(entries)))
	off := 2
	for hash, ep := range entries {
		copy(buf[off:], hash[:])
		off += 32
		binary.BigEndian.PutUint16(buf[off:], uint16(len(ep)))
		off += 2
		copy(buf[off:], ep)
		off += len(ep)
	}
	return buf
}

func decodeContact(payload []byte) (map[[32]byte]string, error) {
	if len(payload) < 2 {
		return nil, errShortContactMessage
	}
	count := int(binary.BigEndian.Uint16(payload))
	off := 2
	out := make(map[[32]byte]string, count)
	for i := 0; i < count; i++ {
		if off+32+2 > len(payload) {
			return nil, errShortContactMessage
		}
		var hash [32]byte
		copy(hash[:], payload[off:off+32])
		off += 32
		epLen := int(binary.BigEndian.Uint16(payload[off:]))
		off += 2
		if off+epLen > len(payload) {
			return nil, errShortContactMessage
		}
		out[hash] = string(payload[off : off+epLen])
		off += epLen
	}
	return out, nil
}

type contactMessageError string

func (e contactMessageError) Error() string { return string(e) }

const errShortContactMessage = contactMessageError("fscp: truncated contact message")

// handleContactRequest answers a CONTACT_REQUEST with whatever
// requested certificate hashes the contact book knows an endpoint for.
func (e *Engine) handleContactRequest(endpoint string, addr net.Addr, plaintext []byte) {
	hashes, err := decodeContactRequest(plaintext)
	if err != nil {
		return
	}

	matched := make(map[[32]byte]string)
	for _, hash := range hashes {
		ep, ok := e.contacts.lookup(hash)
		if !ok {
			continue
		}
		var cert *x509.Certificate
		if entry, ok := e.presentations.Lookup(ep); ok && entry.HasCertificate() {
			cert = entry.Cert
		}
		if !e.hooks.contactRequestReceived(endpoint, cert, hash, ep) {
			continue
		}
		matched[hash] = ep
	}
	if len(matched) == 0 {
		return
	}

	p := e.peerFor(endpoint)
	e.sendEncrypted(endpoint, addr, p, codec.Contact, encodeContact(matched))
}

// handleContact installs every learned endpoint into the contact book
// and notifies the contact-received hook.
func (e *Engine) handleContact(endpoint string, plaintext []byte) {
	learned, err := decodeContact(plaintext)
	if err != nil {
		return
	}
	for hash, ep := range learned {
		e.contacts.learn(hash, ep)
		e.hooks.contactReceived(endpoint, hash, ep)
	}
}

// RequestContact asks endpoint whether it knows a current address for
// any of hashes, via an encrypted CONTACT_REQUEST. It fails with
// ErrNoSessionForHost if there is no current session with endpoint.
func (e *Engine) RequestContact(endpoint string, hashes [][32]byte) error {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return err
	}
	p := e.peerFor(endpoint)
	return e.sendEncrypted(endpoint, addr, p, codec.ContactRequest, encodeContactRequest(hashes))
}

func (e *Engine) sendEncrypted(endpoint string, addr net.Addr, p *peerState, msgType codec.MessageType, plaintext []byte) error {
	sequence, sendKey, noncePrefix, err := p.session.IncrementLocalSequenceNumber()
	if err != nil {
		return err
	}
	suite, _ := p.session.CurrentCipherSuite()
	aead, err := suite.AEAD(sendKey)
	if err != nil {
		return err
	}
	nonce := cryptosuite.BuildNonce(noncePrefix, sequence)
	sealed := aead.Seal(nil, nonce[:], plaintext, nil)

	dataPayload := codec.DataPayload{SequenceNumber: sequence, Ciphertext: sealed[:len(sealed)-codec.TagSize]}
	copy(dataPayload.Tag[:], sealed[len(sealed)-codec.TagSize:])

	buf := make([]byte, codec.HeaderSize+codec.TagSize+6+len(dataPayload.Ciphertext))
	n, err := codec.EncodeData(buf, msgType, dataPayload)
	if err != nil {
		return err
	}
	e.send(addr, buf[:n])

	if p.session.IsOld() {
		e.triggerRekey(endpoint, addr, p)
	}
	return nil
}
