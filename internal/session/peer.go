package session

import "errors"

var (
	// ErrAlreadyConnected is the policy rejection for a duplicate identity,
	// surfaced to the client as an "already-connected" message.
	ErrAlreadyConnected = errors.New("identity already connected")

	// ErrPeerClosed is returned by Send once a peer's channel is gone.
	ErrPeerClosed = errors.New("peer connection closed")

	// errRoomClosed means a join raced a registry eviction and should retry
	// against a freshly resolved room.
	errRoomClosed = errors.New("room evicted")
)

// Peer abstracts one client's persistent message channel. The production
// implementation wraps a websocket connection; tests use channel-backed
// fakes. Messages passed to Send are pre-marshaled frames: two sends to the
// same peer are delivered in order.
type Peer interface {
	ID() string
	Send(data []byte) error
	Closed() bool
	Close()
}
