package session

import (
	"context"
	"encoding/json"
	"testing"

	"collab-app/internal/coordinator"
	"collab-app/internal/database"
	"collab-app/internal/models"
)

func TestHandleSignal(t *testing.T) {
	ctx := context.Background()
	signal := json.RawMessage(`{"sdp":"offer-from-alice"}`)

	t.Run("targeted signal reaches a local peer, stamped with the sender", func(t *testing.T) {
		svc := newTestService(database.NewMemoryStore(), coordinator.NewBus(), "a", testConfig())
		alice := newFakePeer("alice")
		bob := newFakePeer("bob")
		carol := newFakePeer("carol")
		for _, p := range []*fakePeer{alice, bob, carol} {
			if err := svc.Join(ctx, "r1", p); err != nil {
				t.Fatal(err)
			}
		}

		svc.HandleSignal(ctx, "r1", "alice", "bob", signal)

		got := bob.lastOfType(models.MsgWebRTCSignal)
		if got == nil {
			t.Fatal("bob never received the signal")
		}
		if got["from"] != "alice" {
			t.Errorf("signal not stamped with sender, from=%v", got["from"])
		}
		if carol.countType(models.MsgWebRTCSignal) != 0 {
			t.Error("targeted signal leaked to a third peer")
		}
	})

	t.Run("signal for a peer on another instance is relayed over the bus", func(t *testing.T) {
		store := database.NewMemoryStore()
		bus := coordinator.NewBus()
		svcA := newTestService(store, bus, "a", testConfig())
		svcB := newTestService(store, bus, "b", testConfig())

		alice := newFakePeer("alice")
		bob := newFakePeer("bob")
		if err := svcA.Join(ctx, "r1", alice); err != nil {
			t.Fatal(err)
		}
		if err := svcB.Join(ctx, "r1", bob); err != nil {
			t.Fatal(err)
		}

		svcA.HandleSignal(ctx, "r1", "alice", "bob", signal)

		got := bob.lastOfType(models.MsgWebRTCSignal)
		if got == nil {
			t.Fatal("signal never crossed instances")
		}
		if got["from"] != "alice" {
			t.Errorf("relayed signal lost its sender, from=%v", got["from"])
		}
	})

	t.Run("signal for an offline peer is dropped silently", func(t *testing.T) {
		svc := newTestService(database.NewMemoryStore(), coordinator.NewBus(), "a", testConfig())
		alice := newFakePeer("alice")
		if err := svc.Join(ctx, "r1", alice); err != nil {
			t.Fatal(err)
		}

		// No such peer anywhere; nothing to assert beyond not panicking and
		// the sender not getting an error echo.
		svc.HandleSignal(ctx, "r1", "alice", "ghost", signal)
		if alice.countType(models.MsgWebRTCSignal) != 0 {
			t.Error("sender received an unexpected signal echo")
		}
	})

	t.Run("untargeted signal fans out to the rest of the room", func(t *testing.T) {
		store := database.NewMemoryStore()
		bus := coordinator.NewBus()
		svcA := newTestService(store, bus, "a", testConfig())
		svcB := newTestService(store, bus, "b", testConfig())

		alice := newFakePeer("alice")
		bob := newFakePeer("bob")
		carol := newFakePeer("carol")
		if err := svcA.Join(ctx, "r1", alice); err != nil {
			t.Fatal(err)
		}
		if err := svcA.Join(ctx, "r1", bob); err != nil {
			t.Fatal(err)
		}
		if err := svcB.Join(ctx, "r1", carol); err != nil {
			t.Fatal(err)
		}

		svcA.HandleSignal(ctx, "r1", "alice", "", signal)

		if alice.countType(models.MsgWebRTCSignal) != 0 {
			t.Error("originator received its own broadcast signal")
		}
		for _, p := range []*fakePeer{bob, carol} {
			if got := p.countType(models.MsgWebRTCSignal); got != 1 {
				t.Errorf("%s received %d copies, want 1", p.ID(), got)
			}
		}
	})
}

func TestCrossInstanceAlerts(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	bus := coordinator.NewBus()
	svcA := newTestService(store, bus, "a", testConfig())
	svcB := newTestService(store, bus, "b", testConfig())

	alice := newFakePeer("alice")
	if err := svcA.Join(ctx, "r1", alice); err != nil {
		t.Fatal(err)
	}

	bob := newFakePeer("bob")
	if err := svcB.Join(ctx, "r1", bob); err != nil {
		t.Fatal(err)
	}

	// alice (instance a) hears about bob joining on instance b.
	notice := alice.lastOfType(models.MsgNewPeer)
	if notice == nil || notice["peerId"] != "bob" {
		t.Fatalf("alice did not get a cross-instance join notice: %v", notice)
	}

	svcB.Disconnect(ctx, "r1", bob)
	left := alice.lastOfType(models.MsgPeerLeft)
	if left == nil || left["peerId"] != "bob" {
		t.Fatalf("alice did not get a cross-instance leave notice: %v", left)
	}
}
