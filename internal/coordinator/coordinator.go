package coordinator

import (
	"context"
	"encoding/json"
)

// EventType enumerates what instances say to each other over the bus.
type EventType string

const (
	EventPresenceCheck EventType = "presence-check"
	EventPresenceAck   EventType = "presence-ack"
	EventWebRTCSignal  EventType = "webrtc-signal"
	EventNewPeerAlert  EventType = "new-peer-alert"
	EventPeerLeftAlert EventType = "peer-left-alert"
)

// Payload is the event body. From/To name peers for presence and signaling,
// PeerID names the subject of join/leave alerts, Signal is an opaque
// negotiation blob.
type Payload struct {
	Type   EventType       `json:"type"`
	From   string          `json:"from,omitempty"`
	To     string          `json:"to,omitempty"`
	PeerID string          `json:"peerId,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// Event is one message on the cross-instance bus. SenderID is the publishing
// process's instance id; subscribers drop their own events.
type Event struct {
	RoomID   string  `json:"roomId"`
	SenderID string  `json:"senderId"`
	Payload  Payload `json:"payload"`
}

// Coordinator is the publish/subscribe relay shared by all server instances.
// Delivery is best-effort: a publish failure is logged by the caller and the
// system degrades to single-instance behavior.
type Coordinator interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(handler func(Event))
	Close() error
}
