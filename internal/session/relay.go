package session

import (
	"context"
	"encoding/json"

	"collab-app/internal/coordinator"
	"collab-app/internal/models"
)

// HandleSignal routes a WebRTC negotiation payload. A named target that is
// local gets direct delivery stamped with the sender; otherwise the message
// goes over the coordinator and whichever instance holds the target delivers
// it. An absent target fans out to everyone else in the room (mesh setup).
// There are no retries: an offline target drops the message and the client's
// own negotiation timers recover.
func (s *Service) HandleSignal(ctx context.Context, roomID, from, to string, signal json.RawMessage) {
	room := s.registry.Lookup(roomID)
	if room == nil {
		return
	}

	frame, _ := json.Marshal(models.SignalMessage{Type: models.MsgWebRTCSignal, From: from, Signal: signal})

	if to == "" {
		room.broadcast(frame, from)
		s.publish(ctx, roomID, coordinator.Payload{Type: coordinator.EventWebRTCSignal, From: from, Signal: signal})
		return
	}

	if room.sendTo(to, frame) {
		return
	}
	s.publish(ctx, roomID, coordinator.Payload{Type: coordinator.EventWebRTCSignal, From: from, To: to, Signal: signal})
}

// handleEvent is the subscriber side of the coordinator bus. Events this
// instance published are dropped; everything else is delivered to local
// peers only, via Lookup, so remote traffic never instantiates rooms here.
func (s *Service) handleEvent(event coordinator.Event) {
	if event.SenderID == s.instanceID {
		return
	}
	ctx := context.Background()

	switch event.Payload.Type {
	case coordinator.EventPresenceCheck:
		room := s.registry.Lookup(event.RoomID)
		if room != nil && room.HasPeer(event.Payload.From) {
			s.publish(ctx, event.RoomID, coordinator.Payload{Type: coordinator.EventPresenceAck, From: event.Payload.From})
		}

	case coordinator.EventPresenceAck:
		s.pendingMu.Lock()
		ack := s.pending[pendingKey(event.RoomID, event.Payload.From)]
		s.pendingMu.Unlock()
		if ack != nil {
			select {
			case ack <- struct{}{}:
			default:
			}
		}

	case coordinator.EventWebRTCSignal:
		room := s.registry.Lookup(event.RoomID)
		if room == nil {
			return
		}
		frame, _ := json.Marshal(models.SignalMessage{Type: models.MsgWebRTCSignal, From: event.Payload.From, Signal: event.Payload.Signal})
		if event.Payload.To == "" {
			room.broadcast(frame, event.Payload.From)
		} else {
			room.sendTo(event.Payload.To, frame)
		}

	case coordinator.EventNewPeerAlert:
		s.broadcastPeerEvent(event.RoomID, models.MsgNewPeer, event.Payload.PeerID)

	case coordinator.EventPeerLeftAlert:
		s.broadcastPeerEvent(event.RoomID, models.MsgPeerLeft, event.Payload.PeerID)
	}
}

func (s *Service) broadcastPeerEvent(roomID, kind, peerID string) {
	room := s.registry.Lookup(roomID)
	if room == nil {
		return
	}
	frame, _ := json.Marshal(models.PeerEventMessage{Type: kind, PeerID: peerID})
	room.broadcast(frame, peerID)
}
