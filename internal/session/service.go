package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"collab-app/internal/config"
	"collab-app/internal/coordinator"
	"collab-app/internal/crdt"
	"collab-app/internal/database"
	"collab-app/internal/models"
	"collab-app/pkg/logger"
)

// Service is the orchestration core: it owns the registry, arbitrates joins,
// relays signaling, bridges document updates to the durable store and drives
// room lifecycle. All cross-instance traffic goes through the coordinator
// bus; all durable state goes through the store.
type Service struct {
	registry   *Registry
	store      database.Store
	bus        coordinator.Coordinator
	cfg        config.SessionConfig
	instanceID string

	pendingMu sync.Mutex
	pending   map[string]chan struct{}
}

func NewService(store database.Store, bus coordinator.Coordinator, engine crdt.Engine, cfg config.SessionConfig, instanceID string) *Service {
	s := &Service{
		registry:   NewRegistry(engine),
		store:      store,
		bus:        bus,
		cfg:        cfg,
		instanceID: instanceID,
		pending:    make(map[string]chan struct{}),
	}
	bus.Subscribe(s.handleEvent)
	return s
}

// Join admits a peer into a room or rejects it with ErrAlreadyConnected.
// The arbitration order is: local duplicate, durable membership row, then a
// cross-instance presence probe to distinguish "still connected elsewhere"
// from a stale row left by an unclean shutdown. A join that loses a race
// against room eviction starts over with a fresh room.
func (s *Service) Join(ctx context.Context, roomID string, peer Peer) error {
	for {
		err := s.join(ctx, roomID, peer)
		if !errors.Is(err, errRoomClosed) {
			return err
		}
	}
}

func (s *Service) join(ctx context.Context, roomID string, peer Peer) error {
	room, created := s.registry.Resolve(roomID)
	if created {
		go s.reconcileLoop(room)
	}
	if err := s.ensureLoaded(ctx, room); err != nil {
		s.registry.EvictIfEmpty(roomID)
		return fmt.Errorf("failed to load room %s: %w", roomID, err)
	}

	identity := peer.ID()
	if room.HasPeer(identity) {
		return ErrAlreadyConnected
	}

	if s.membershipOnRecord(ctx, roomID, identity) && s.probePresence(ctx, roomID, identity) {
		// Do not keep an idle room alive on behalf of a rejected join.
		s.registry.EvictIfEmpty(roomID)
		return ErrAlreadyConnected
	}

	// No ack within the window means the row was stale; admit and overwrite.
	if err := s.store.UpsertMembership(ctx, roomID, identity); err != nil {
		logger.Error("Failed to upsert membership for %s in room %s: %v", identity, roomID, err)
	}

	if err := room.addPeer(peer); err != nil {
		return err
	}

	s.sendWelcome(ctx, room, peer)

	joinNotice, _ := json.Marshal(models.PeerEventMessage{Type: models.MsgNewPeer, PeerID: identity})
	room.broadcast(joinNotice, identity)
	s.publish(ctx, roomID, coordinator.Payload{Type: coordinator.EventNewPeerAlert, PeerID: identity})

	logger.Info("Peer %s joined room %s", identity, roomID)
	return nil
}

// sendWelcome gives a new peer the current participant list and the full
// document snapshot. The list comes from the durable mapping so peers held
// by other instances show up; local peers are the fallback when the store
// is unreachable.
func (s *Service) sendWelcome(ctx context.Context, room *Room, peer Peer) {
	identity := peer.ID()

	members, err := s.store.ListMembers(ctx, room.ID)
	if err != nil {
		logger.Error("Falling back to local peer list for room %s: %v", room.ID, err)
		members = room.peerIDs(identity)
	} else {
		others := members[:0]
		for _, m := range members {
			if m != identity {
				others = append(others, m)
			}
		}
		members = others
	}

	peersFrame, _ := json.Marshal(models.NewPeersMessage(members))
	peer.Send(peersFrame)

	room.mu.Lock()
	snapshot := room.doc.EncodeSnapshot()
	room.mu.Unlock()

	initFrame, _ := json.Marshal(models.UpdateMessage{Type: models.MsgYjsInit, Update: snapshot})
	peer.Send(initFrame)
}

// ensureLoaded lazily hydrates the room from the durable store on first use:
// create the record if this is a brand new room, then adopt the stored blob
// and version as the local baseline.
func (s *Service) ensureLoaded(ctx context.Context, room *Room) error {
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.loaded {
		return nil
	}

	exists, err := s.store.RoomExists(ctx, room.ID)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.store.CreateRoom(ctx, room.ID, room.doc.EncodeSnapshot()); err != nil {
			return err
		}
	}

	record, err := s.store.ReadRoom(ctx, room.ID)
	if err != nil {
		return err
	}
	if err := room.doc.ApplyUpdate(record.Blob); err != nil {
		logger.Error("Stored blob for room %s did not apply cleanly: %v", room.ID, err)
	}
	room.version = record.Version
	room.persistedVector = room.doc.StateVector()
	now := time.Now()
	room.lastReadAt = now
	room.lastWrittenAt = now
	room.loaded = true
	return nil
}

// membershipOnRecord reports whether the durable mapping lists the identity
// in this room. Store failures degrade to "no record", which errs on the
// side of admitting a legitimate rejoin.
func (s *Service) membershipOnRecord(ctx context.Context, roomID, identity string) bool {
	members, err := s.store.ListMembers(ctx, roomID)
	if err != nil {
		logger.Error("Membership lookup failed for room %s: %v", roomID, err)
		return false
	}
	for _, m := range members {
		if m == identity {
			return true
		}
	}
	return false
}

// probePresence publishes a presence-check and waits up to the configured
// window for an ack from whichever instance holds the connection. The window
// elapsing is not an error: nobody answered, the row is stale.
func (s *Service) probePresence(ctx context.Context, roomID, identity string) bool {
	key := pendingKey(roomID, identity)
	ack := make(chan struct{}, 1)

	s.pendingMu.Lock()
	s.pending[key] = ack
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, key)
		s.pendingMu.Unlock()
	}()

	s.publish(ctx, roomID, coordinator.Payload{Type: coordinator.EventPresenceCheck, From: identity})

	timer := time.NewTimer(s.cfg.PresenceTimeout)
	defer timer.Stop()
	select {
	case <-ack:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Disconnect tears down one admitted connection. It is safe to call from
// both the explicit close path and the socket-closed path; only the call
// that actually removes the registered peer runs the cleanup.
func (s *Service) Disconnect(ctx context.Context, roomID string, peer Peer) {
	room := s.registry.Lookup(roomID)
	if room == nil {
		return
	}

	identity := peer.ID()
	if !room.removePeer(identity, peer) {
		return
	}

	if err := s.store.DeleteMembership(ctx, identity); err != nil {
		logger.Error("Failed to delete membership for %s: %v", identity, err)
	}

	leftNotice, _ := json.Marshal(models.PeerEventMessage{Type: models.MsgPeerLeft, PeerID: identity})
	room.broadcast(leftNotice, identity)
	s.publish(ctx, roomID, coordinator.Payload{Type: coordinator.EventPeerLeftAlert, PeerID: identity})

	logger.Info("Peer %s left room %s", identity, roomID)

	// Grace period absorbs refresh/reconnect churn before the durable record
	// is considered for deletion.
	time.AfterFunc(s.cfg.CleanupGrace, func() {
		s.cleanupRoom(roomID)
	})
}

// cleanupRoom runs after the grace period: flush the document if no local
// peer remains, drop the durable record when the room is empty everywhere,
// and evict the local state.
func (s *Service) cleanupRoom(roomID string) {
	ctx := context.Background()

	if room := s.registry.Lookup(roomID); room != nil && room.empty() {
		s.reconcileWrite(ctx, room)
	}
	if err := s.store.DeleteRoomIfNoMembers(ctx, roomID); err != nil {
		logger.Error("Failed to clean up room %s: %v", roomID, err)
	}
	if s.registry.EvictIfEmpty(roomID) {
		logger.Debug("Evicted room %s", roomID)
	}
}

// Registry exposes the room registry for handlers and tests.
func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) publish(ctx context.Context, roomID string, payload coordinator.Payload) {
	event := coordinator.Event{RoomID: roomID, SenderID: s.instanceID, Payload: payload}
	if err := s.bus.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish %s event for room %s: %v", payload.Type, roomID, err)
	}
}

func pendingKey(roomID, identity string) string {
	return roomID + "\x00" + identity
}
