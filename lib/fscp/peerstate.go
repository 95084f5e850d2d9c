package fscp

import (
	"sync"

	"github.com/freelan-go/fscp/lib/peer"
)

// peerState bundles a peer-session with the endpoint-level bookkeeping
// an engine keeps alongside it: the last session number this side
// allocated.
type peerState struct {
	endpoint string
	session  *peer.Session

	mu                  sync.Mutex
	nextSessionNumber   uint32
	localSessionPending bool // not set or read by any code path; always false
}

func newPeerState(endpoint string, localHostID [32]byte) *peerState {
	return &peerState{
		endpoint: endpoint,
		session:  peer.NewSession(localHostID),
	}
}

// allocateSessionNumber returns a fresh, strictly increasing session
// number to offer in the next SESSION_REQUEST/SESSION this peer sends.
func (p *peerState) allocateSessionNumber() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSessionNumber++
	return p.nextSessionNumber
}
