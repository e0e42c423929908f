package broadcast

import (
	"testing"
	"time"
)

func TestPublishReachesRoomSubscribersOnly(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("room-1")
	defer sub.Close()
	other := b.Subscribe("room-2")
	defer other.Close()

	b.Publish(Event{Kind: KindRoom, RoomID: "room-1"})

	select {
	case ev := <-sub.Events():
		if ev.Kind != KindRoom || ev.RoomID != "room-1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("event leaked across rooms: %+v", ev)
	default:
	}
}

func TestEventsArriveInPublishOrder(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("room-1")
	defer sub.Close()

	kinds := []EventKind{KindRoom, KindQuestion, KindPlayers}
	for _, k := range kinds {
		b.Publish(Event{Kind: k, RoomID: "room-1"})
	}
	for i, want := range kinds {
		ev := <-sub.Events()
		if ev.Kind != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, ev.Kind)
		}
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("room-1")
	defer sub.Close()

	// Overfill the buffer without reading. The oldest events are shed and the
	// most recent survive, so a reconciling reader still converges.
	for i := 0; i < 32; i++ {
		b.Publish(Event{Kind: KindPlayers, RoomID: "room-1"})
	}
	b.Publish(Event{Kind: KindRoom, RoomID: "room-1"})

	var last Event
	drained := 0
	for {
		select {
		case ev := <-sub.Events():
			last = ev
			drained++
			continue
		default:
		}
		break
	}
	if drained > 16 {
		t.Fatalf("buffer grew past capacity: %d", drained)
	}
	if last.Kind != KindRoom {
		t.Fatalf("newest event was shed: last=%s", last.Kind)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("room-1")
	sub.Close()
	sub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
}

func TestNoDeliveryAfterClose(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("room-1")
	sub.Close()

	b.Publish(Event{Kind: KindRoom, RoomID: "room-1"})

	if ev, ok := <-sub.Events(); ok {
		t.Fatalf("event delivered after close: %+v", ev)
	}
}

func TestPublishWithoutSubscribersIsSafe(t *testing.T) {
	b := NewBroker()
	b.Publish(Event{Kind: KindRoom, RoomID: "nobody"})
}
