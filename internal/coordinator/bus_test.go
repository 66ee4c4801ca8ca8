package coordinator

import (
	"context"
	"testing"
)

func TestBus(t *testing.T) {
	ctx := context.Background()

	t.Run("fan-out to all subscribers", func(t *testing.T) {
		bus := NewBus()

		var got []Event
		bus.Subscribe(func(ev Event) { got = append(got, ev) })
		bus.Subscribe(func(ev Event) { got = append(got, ev) })

		ev := Event{RoomID: "r1", SenderID: "a", Payload: Payload{Type: EventNewPeerAlert, PeerID: "alice"}}
		if err := bus.Publish(ctx, ev); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		if len(got) != 2 {
			t.Fatalf("expected 2 deliveries, got %d", len(got))
		}
		for _, g := range got {
			if g.Payload.PeerID != "alice" || g.Payload.Type != EventNewPeerAlert {
				t.Errorf("unexpected event %+v", g)
			}
		}
	})

	t.Run("handlers can publish replies inline", func(t *testing.T) {
		bus := NewBus()

		var acks int
		bus.Subscribe(func(ev Event) {
			if ev.Payload.Type == EventPresenceCheck {
				bus.Publish(ctx, Event{RoomID: ev.RoomID, SenderID: "b", Payload: Payload{Type: EventPresenceAck, From: ev.Payload.From}})
			}
		})
		bus.Subscribe(func(ev Event) {
			if ev.Payload.Type == EventPresenceAck {
				acks++
			}
		})

		check := Event{RoomID: "r1", SenderID: "a", Payload: Payload{Type: EventPresenceCheck, From: "alice"}}
		if err := bus.Publish(ctx, check); err != nil {
			t.Fatal(err)
		}
		if acks != 1 {
			t.Errorf("expected 1 ack, got %d", acks)
		}
	})

	t.Run("publish after close is dropped", func(t *testing.T) {
		bus := NewBus()

		delivered := false
		bus.Subscribe(func(Event) { delivered = true })
		if err := bus.Close(); err != nil {
			t.Fatal(err)
		}
		if err := bus.Publish(ctx, Event{RoomID: "r1"}); err != nil {
			t.Fatal(err)
		}
		if delivered {
			t.Error("event delivered after close")
		}
	})
}
