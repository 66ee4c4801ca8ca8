package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRooms(t *testing.T) {
	ctx := context.Background()

	t.Run("read missing room returns ErrRoomNotFound", func(t *testing.T) {
		store := NewMemoryStore()
		_, err := store.ReadRoom(ctx, "nope")
		if !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("create then read", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.CreateRoom(ctx, "r1", []byte("blob")); err != nil {
			t.Fatalf("create failed: %v", err)
		}

		record, err := store.ReadRoom(ctx, "r1")
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if record.Version != 0 {
			t.Errorf("expected version 0, got %d", record.Version)
		}
		if !bytes.Equal(record.Blob, []byte("blob")) {
			t.Errorf("unexpected blob %q", record.Blob)
		}
	})

	t.Run("create is idempotent and keeps the first blob", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.CreateRoom(ctx, "r1", []byte("first")); err != nil {
			t.Fatal(err)
		}
		if err := store.CreateRoom(ctx, "r1", []byte("second")); err != nil {
			t.Fatal(err)
		}

		record, err := store.ReadRoom(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(record.Blob, []byte("first")) {
			t.Errorf("second create overwrote the room, got %q", record.Blob)
		}
	})

	t.Run("write with matching version is applied", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.CreateRoom(ctx, "r1", []byte("v0")); err != nil {
			t.Fatal(err)
		}

		applied, err := store.WriteRoom(ctx, "r1", []byte("v1"), 0)
		if err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if !applied {
			t.Fatal("expected write to be applied")
		}

		record, err := store.ReadRoom(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if record.Version != 1 {
			t.Errorf("expected version 1, got %d", record.Version)
		}
		if !bytes.Equal(record.Blob, []byte("v1")) {
			t.Errorf("unexpected blob %q", record.Blob)
		}
	})

	t.Run("stale version write is a no-op", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.CreateRoom(ctx, "r1", []byte("v0")); err != nil {
			t.Fatal(err)
		}
		if _, err := store.WriteRoom(ctx, "r1", []byte("v1"), 0); err != nil {
			t.Fatal(err)
		}

		applied, err := store.WriteRoom(ctx, "r1", []byte("stale"), 0)
		if err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if applied {
			t.Fatal("stale write must not be applied")
		}

		record, err := store.ReadRoom(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if record.Version != 1 || !bytes.Equal(record.Blob, []byte("v1")) {
			t.Errorf("stale write changed stored state: version=%d blob=%q", record.Version, record.Blob)
		}
	})
}

func TestMemoryStoreMemberships(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert moves an identity between rooms", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.UpsertMembership(ctx, "r1", "alice"); err != nil {
			t.Fatal(err)
		}
		if err := store.UpsertMembership(ctx, "r2", "alice"); err != nil {
			t.Fatal(err)
		}

		members, err := store.ListMembers(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 0 {
			t.Errorf("expected r1 empty after move, got %v", members)
		}

		members, err = store.ListMembers(ctx, "r2")
		if err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 || members[0] != "alice" {
			t.Errorf("expected [alice] in r2, got %v", members)
		}
	})

	t.Run("room deletion is blocked while members remain", func(t *testing.T) {
		store := NewMemoryStore()
		if err := store.CreateRoom(ctx, "r1", nil); err != nil {
			t.Fatal(err)
		}
		if err := store.UpsertMembership(ctx, "r1", "alice"); err != nil {
			t.Fatal(err)
		}

		if err := store.DeleteRoomIfNoMembers(ctx, "r1"); err != nil {
			t.Fatal(err)
		}
		if exists, _ := store.RoomExists(ctx, "r1"); !exists {
			t.Fatal("room deleted while a member remained")
		}

		if err := store.DeleteMembership(ctx, "alice"); err != nil {
			t.Fatal(err)
		}
		if err := store.DeleteRoomIfNoMembers(ctx, "r1"); err != nil {
			t.Fatal(err)
		}
		if exists, _ := store.RoomExists(ctx, "r1"); exists {
			t.Fatal("room not deleted after last member left")
		}
	})
}
