package services

import (
	"context"
	"fmt"

	"collab-app/internal/database"
)

// RoomService answers read-only questions about rooms from the durable
// store, for clients deciding whether to join and for the REST surface.
type RoomService struct {
	store database.Store
}

func NewRoomService(store database.Store) *RoomService {
	return &RoomService{store: store}
}

func (s *RoomService) RoomExists(ctx context.Context, roomID string) (bool, error) {
	if roomID == "" {
		return false, fmt.Errorf("room id is required")
	}
	return s.store.RoomExists(ctx, roomID)
}

// ActiveMembers lists every identity currently mapped to the room across all
// server instances, from the durable membership mapping.
func (s *RoomService) ActiveMembers(ctx context.Context, roomID string) ([]string, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room id is required")
	}
	members, err := s.store.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}
