package session

import (
	"sync"

	"collab-app/internal/crdt"
)

// Registry is the process-local mapping from room id to Room. Rooms are
// created lazily on first resolve and evicted once their peer map empties.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	engine crdt.Engine
}

func NewRegistry(engine crdt.Engine) *Registry {
	return &Registry{
		rooms:  make(map[string]*Room),
		engine: engine,
	}
}

// Resolve returns the room, creating it on first reference. The created flag
// tells the caller it owns starting the room's reconcile loop.
func (reg *Registry) Resolve(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.rooms[roomID]
	if exists {
		return room, false
	}
	room = newRoom(roomID, reg.engine.NewDoc())
	reg.rooms[roomID] = room
	return room, true
}

// Lookup returns the room or nil. Coordinator events use it so that traffic
// for rooms with no local peers never instantiates state here.
func (reg *Registry) Lookup(roomID string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[roomID]
}

// EvictIfEmpty removes the room once its peer map is empty and stops its
// reconcile loop. The document survives only in the durable store from here.
// Closing the room under its peer lock fences out joins that already hold
// the room pointer: their addPeer fails and they resolve a fresh room.
func (reg *Registry) EvictIfEmpty(roomID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.rooms[roomID]
	if !exists || !room.markClosed() {
		return false
	}
	delete(reg.rooms, roomID)
	close(room.done)
	return true
}

func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
