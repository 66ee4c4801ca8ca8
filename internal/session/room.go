package session

import (
	"sync"
	"time"

	"collab-app/internal/crdt"
)

// Room is the per-room in-memory record: the CRDT document handle, the local
// peer registry and the reconciliation bookkeeping against the durable copy.
// mu guards doc, version and the timestamps; the peer map has its own
// internally-locked accessors so broadcasts never hold the document lock.
type Room struct {
	ID string

	mu      sync.Mutex
	doc     crdt.Doc
	version int64
	loaded  bool
	// persistedVector tracks what the durable copy already covers; a clean
	// diff against it means there is nothing to flush.
	persistedVector []byte
	lastReadAt      time.Time
	lastWrittenAt   time.Time

	peersMu sync.Mutex
	peers   map[string]Peer
	// closed is set by registry eviction; a closed room accepts no peers, so
	// a join racing the eviction retries against a fresh room instead of
	// landing in an orphan the registry no longer resolves.
	closed bool

	done chan struct{}
}

func newRoom(id string, doc crdt.Doc) *Room {
	return &Room{
		ID:    id,
		doc:   doc,
		peers: make(map[string]Peer),
		done:  make(chan struct{}),
	}
}

func (r *Room) HasPeer(id string) bool {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	_, ok := r.peers[id]
	return ok
}

// addPeer registers the peer unless the identity is already taken or the
// room has been evicted.
func (r *Room) addPeer(p Peer) error {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	if r.closed {
		return errRoomClosed
	}
	if _, ok := r.peers[p.ID()]; ok {
		return ErrAlreadyConnected
	}
	r.peers[p.ID()] = p
	return nil
}

// markClosed flags the room as evicted if no peer remains. Returns false
// when a peer slipped in first, in which case the eviction must not proceed.
func (r *Room) markClosed() bool {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	if len(r.peers) != 0 {
		return false
	}
	r.closed = true
	return true
}

// removePeer drops the identity only if the registered connection is this
// exact peer, so a rejected duplicate closing its socket cannot knock out
// the live connection.
func (r *Room) removePeer(id string, p Peer) bool {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	if current, ok := r.peers[id]; !ok || current != p {
		return false
	}
	delete(r.peers, id)
	return true
}

func (r *Room) peerIDs(except string) []string {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	ids := make([]string, 0, len(r.peers))
	for id := range r.peers {
		if id != except {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Room) empty() bool {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	return len(r.peers) == 0
}

// broadcast delivers a frame to every local peer except the named one.
// Delivery is best-effort; a peer with a saturated buffer gets closed and
// cleaned up by its own disconnect path.
func (r *Room) broadcast(data []byte, except string) {
	for _, p := range r.snapshotPeers() {
		if p.ID() == except {
			continue
		}
		p.Send(data)
	}
}

func (r *Room) sendTo(id string, data []byte) bool {
	r.peersMu.Lock()
	p, ok := r.peers[id]
	r.peersMu.Unlock()
	if !ok {
		return false
	}
	p.Send(data)
	return true
}

func (r *Room) snapshotPeers() []Peer {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	return peers
}
