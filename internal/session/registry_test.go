package session

import (
	"errors"
	"testing"

	"collab-app/internal/crdt"
)

func TestRegistry(t *testing.T) {
	t.Run("resolve creates each room exactly once", func(t *testing.T) {
		reg := NewRegistry(crdt.NewUpdateSetEngine())

		first, created := reg.Resolve("r1")
		if !created {
			t.Fatal("first resolve did not report creation")
		}
		second, created := reg.Resolve("r1")
		if created {
			t.Error("second resolve reported creation")
		}
		if first != second {
			t.Error("resolve returned different rooms for the same id")
		}
		if reg.Len() != 1 {
			t.Errorf("registry holds %d rooms, want 1", reg.Len())
		}
	})

	t.Run("lookup never instantiates", func(t *testing.T) {
		reg := NewRegistry(crdt.NewUpdateSetEngine())
		if reg.Lookup("r1") != nil {
			t.Error("lookup returned a room that was never resolved")
		}
		if reg.Len() != 0 {
			t.Error("lookup created registry state")
		}
	})

	t.Run("eviction refuses occupied rooms", func(t *testing.T) {
		reg := NewRegistry(crdt.NewUpdateSetEngine())
		room, _ := reg.Resolve("r1")
		alice := newFakePeer("alice")
		room.addPeer(alice)

		if reg.EvictIfEmpty("r1") {
			t.Fatal("evicted a room with a live peer")
		}
		if reg.Lookup("r1") == nil {
			t.Fatal("occupied room disappeared")
		}

		room.removePeer("alice", alice)
		if !reg.EvictIfEmpty("r1") {
			t.Fatal("empty room was not evicted")
		}
		if reg.Lookup("r1") != nil {
			t.Error("evicted room still resolvable")
		}
		select {
		case <-room.done:
		default:
			t.Error("eviction did not release the room's loop")
		}
	})

	t.Run("eviction fences out a join holding the old room pointer", func(t *testing.T) {
		reg := NewRegistry(crdt.NewUpdateSetEngine())
		stale, _ := reg.Resolve("r1")

		if !reg.EvictIfEmpty("r1") {
			t.Fatal("empty room was not evicted")
		}

		// A join that resolved the room before the eviction must be told to
		// start over rather than land in an orphaned room.
		if err := stale.addPeer(newFakePeer("alice")); !errors.Is(err, errRoomClosed) {
			t.Fatalf("expected errRoomClosed from the evicted room, got %v", err)
		}

		fresh, created := reg.Resolve("r1")
		if !created {
			t.Fatal("retry did not get a fresh room")
		}
		if err := fresh.addPeer(newFakePeer("alice")); err != nil {
			t.Fatalf("join on the fresh room failed: %v", err)
		}
	})
}

func TestRoomPeers(t *testing.T) {
	room := newRoom("r1", crdt.NewUpdateSetEngine().NewDoc())

	alice := newFakePeer("alice")
	if err := room.addPeer(alice); err != nil {
		t.Fatalf("first add rejected: %v", err)
	}
	dup := newFakePeer("alice")
	if err := room.addPeer(dup); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("duplicate identity admitted, err %v", err)
	}

	// The duplicate tearing down must not evict the live connection.
	if room.removePeer("alice", dup) {
		t.Error("duplicate connection removed the live peer")
	}
	if !room.HasPeer("alice") {
		t.Fatal("live peer lost")
	}
	if !room.removePeer("alice", alice) {
		t.Error("live peer could not remove itself")
	}

	bob := newFakePeer("bob")
	carol := newFakePeer("carol")
	if err := room.addPeer(bob); err != nil {
		t.Fatal(err)
	}
	if err := room.addPeer(carol); err != nil {
		t.Fatal(err)
	}

	room.broadcast([]byte(`{"type":"probe"}`), "bob")
	if got := bob.countType("probe"); got != 0 {
		t.Errorf("excluded peer received %d frames", got)
	}
	if got := carol.countType("probe"); got != 1 {
		t.Errorf("carol received %d frames, want 1", got)
	}

	if room.sendTo("ghost", []byte(`{}`)) {
		t.Error("sendTo reported delivery to an absent peer")
	}
}
