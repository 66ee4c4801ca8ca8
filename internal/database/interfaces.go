package database

import (
	"context"
	"errors"
)

// ErrRoomNotFound is returned by ReadRoom for rooms that were never created
// or were already cleaned up.
var ErrRoomNotFound = errors.New("room not found")

// RoomRecord is the durable copy of a room document. Version is the
// optimistic-concurrency token: a write is applied only if the caller's
// version still matches the stored one.
type RoomRecord struct {
	ID      string
	Blob    []byte
	Version int64
}

type CredentialRepository interface {
	// GetCredential returns the stored secret for an identity, or "" if the
	// identity is unknown.
	GetCredential(ctx context.Context, username string) (string, error)
	InsertCredential(ctx context.Context, username, secret string) error
}

type RoomRepository interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
	CreateRoom(ctx context.Context, roomID string, initialBlob []byte) error
	ReadRoom(ctx context.Context, roomID string) (*RoomRecord, error)
	// WriteRoom stores blob if expectedVersion matches the stored version and
	// reports whether the write was applied. A mismatch is not an error; the
	// caller re-reads and tries again on its next cycle.
	WriteRoom(ctx context.Context, roomID string, blob []byte, expectedVersion int64) (bool, error)
	// DeleteRoomIfNoMembers removes the room record only when no membership
	// row references it anymore.
	DeleteRoomIfNoMembers(ctx context.Context, roomID string) error
}

type MembershipRepository interface {
	// ListMembers returns every identity currently mapped to the room,
	// regardless of which process holds the connection.
	ListMembers(ctx context.Context, roomID string) ([]string, error)
	// UpsertMembership maps an identity to a room. The identity is the unique
	// key, so a rejoin overwrites any leftover row from an unclean shutdown.
	UpsertMembership(ctx context.Context, roomID, username string) error
	DeleteMembership(ctx context.Context, username string) error
}

type Store interface {
	CredentialRepository
	RoomRepository
	MembershipRepository
	Close() error
}
