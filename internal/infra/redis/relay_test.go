package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"quizroom-service/internal/broadcast"
)

func TestRelayBridgesInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mr, clientA := newTestClient(t)
	clientB := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer clientB.Close()

	brokerA := broadcast.NewBroker()
	brokerB := broadcast.NewBroker()
	relayA := NewRelay(clientA, brokerA)
	relayB := NewRelay(clientB, brokerB)

	go relayA.Run(ctx)
	go relayB.Run(ctx)
	// PSubscribe registration races with the first publish; give it a moment.
	time.Sleep(100 * time.Millisecond)

	subA := brokerA.Subscribe("room-1")
	defer subA.Close()
	subB := brokerB.Subscribe("room-1")
	defer subB.Close()

	relayA.Publish(broadcast.Event{Kind: broadcast.KindRoom, RoomID: "room-1"})

	// The remote instance sees the event through redis.
	select {
	case ev := <-subB.Events():
		if ev.Kind != broadcast.KindRoom || ev.RoomID != "room-1" {
			t.Fatalf("unexpected remote event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote broker never received the event")
	}

	// The origin instance delivers locally exactly once: the echoed copy from
	// redis is dropped by origin tag.
	select {
	case ev := <-subA.Events():
		if ev.Kind != broadcast.KindRoom {
			t.Fatalf("unexpected local event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("local broker never received the event")
	}
	select {
	case ev := <-subA.Events():
		t.Fatalf("own echo redelivered: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRelayIgnoresMalformedPayloads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, client := newTestClient(t)

	broker := broadcast.NewBroker()
	relay := NewRelay(client, broker)
	go relay.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	sub := broker.Subscribe("room-1")
	defer sub.Close()

	if err := client.Publish(ctx, "room.events.room-1", "{garbage").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("malformed payload delivered: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}
