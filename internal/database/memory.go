package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store with mutex-guarded maps. It backs tests and
// single-process dev runs (DATABASE_URL=memory) with the same semantics as
// the Postgres implementation, including the optimistic version check.
type MemoryStore struct {
	mu          sync.Mutex
	credentials map[string]string
	rooms       map[string]*RoomRecord
	memberships map[string]membership // username -> current room
}

type membership struct {
	roomID   string
	lastSeen time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]string),
		rooms:       make(map[string]*RoomRecord),
		memberships: make(map[string]membership),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) GetCredential(ctx context.Context, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credentials[username], nil
}

func (s *MemoryStore) InsertCredential(ctx context.Context, username, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[username]; exists {
		return fmt.Errorf("username %q already registered", username)
	}
	s.credentials[username] = secret
	return nil
}

func (s *MemoryStore) RoomExists(ctx context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.rooms[roomID]
	return exists, nil
}

func (s *MemoryStore) CreateRoom(ctx context.Context, roomID string, initialBlob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[roomID]; exists {
		return nil
	}
	s.rooms[roomID] = &RoomRecord{ID: roomID, Blob: cloneBytes(initialBlob), Version: 0}
	return nil
}

func (s *MemoryStore) ReadRoom(ctx context.Context, roomID string) (*RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.rooms[roomID]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return &RoomRecord{ID: record.ID, Blob: cloneBytes(record.Blob), Version: record.Version}, nil
}

func (s *MemoryStore) WriteRoom(ctx context.Context, roomID string, blob []byte, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.rooms[roomID]
	if !exists || record.Version != expectedVersion {
		return false, nil
	}
	record.Blob = cloneBytes(blob)
	record.Version++
	return true, nil
}

func (s *MemoryStore) DeleteRoomIfNoMembers(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.memberships {
		if m.roomID == roomID {
			return nil
		}
	}
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) ListMembers(ctx context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var members []string
	for username, m := range s.memberships {
		if m.roomID == roomID {
			members = append(members, username)
		}
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) UpsertMembership(ctx context.Context, roomID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[username] = membership{roomID: roomID, lastSeen: time.Now()}
	return nil
}

func (s *MemoryStore) DeleteMembership(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, username)
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
