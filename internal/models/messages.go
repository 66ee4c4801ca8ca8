package models

import "encoding/json"

// Socket message kinds. Inbound and outbound share the "type" discriminator;
// the yjs-* payloads are opaque CRDT blobs that the server routes but never
// interprets, and "signal" is an opaque WebRTC negotiation payload.
const (
	MsgNewClient        = "new-client"
	MsgYjsUpdate        = "yjs-update"
	MsgYjsInit          = "yjs-init"
	MsgWebRTCSignal     = "webrtc-signal"
	MsgPeers            = "peers"
	MsgNewPeer          = "new-peer"
	MsgPeerLeft         = "peer-left"
	MsgAlreadyConnected = "already-connected"
)

// ClientMessage is the envelope for everything a client may send. Unknown
// types and fields are ignored, never an error.
type ClientMessage struct {
	Type   string          `json:"type"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
	Update []byte          `json:"update,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// Outbound messages are marshaled once at the source and fanned out as raw
// bytes, so each kind gets its own struct.

type PeersMessage struct {
	Type  string   `json:"type"`
	Peers []string `json:"peers"`
}

type UpdateMessage struct {
	Type   string `json:"type"`
	Update []byte `json:"update"`
}

type SignalMessage struct {
	Type   string          `json:"type"`
	From   string          `json:"from,omitempty"`
	Signal json.RawMessage `json:"signal"`
}

type PeerEventMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
}

type StatusMessage struct {
	Type string `json:"type"`
}

func NewPeersMessage(peers []string) PeersMessage {
	if peers == nil {
		peers = []string{}
	}
	return PeersMessage{Type: MsgPeers, Peers: peers}
}
