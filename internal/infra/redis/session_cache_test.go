package redis

import (
	"context"
	"testing"
	"time"

	"quizroom-service/internal/domain"
)

func TestSessionCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	cache := NewSessionCache(client, time.Hour)

	sess := domain.PlayerSession{
		RoomCode:   "ABC123",
		PlayerID:   "p1",
		PlayerName: "Alice",
		Timestamp:  time.Now(),
	}
	if err := cache.Save(ctx, "name:alice", sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := cache.Get(ctx, "abc123", "name:alice")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.PlayerID != "p1" || got.PlayerName != "Alice" {
		t.Fatalf("session corrupted: %+v", got)
	}
}

func TestSessionCacheMiss(t *testing.T) {
	ctx := context.Background()
	_, client := newTestClient(t)
	cache := NewSessionCache(client, time.Hour)

	_, ok, err := cache.Get(ctx, "ABC123", "name:nobody")
	if err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
}

func TestSessionCacheStaleEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	cache := NewSessionCache(client, time.Hour)

	sess := domain.PlayerSession{RoomCode: "ABC123", PlayerID: "p1", Timestamp: time.Now()}
	if err := cache.Save(ctx, "name:alice", sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Redis key still present, but the recorded timestamp is past the window.
	cache.clock = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, ok, err := cache.Get(ctx, "ABC123", "name:alice")
	if err != nil || ok {
		t.Fatalf("expected stale entry treated as miss, ok=%v err=%v", ok, err)
	}
	if mr.Exists("session:ABC123:name:alice") {
		t.Fatalf("expected stale entry evicted")
	}
}

func TestSessionCacheExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	cache := NewSessionCache(client, time.Hour)

	sess := domain.PlayerSession{RoomCode: "ABC123", PlayerID: "p1", Timestamp: time.Now()}
	if err := cache.Save(ctx, "name:alice", sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	_, ok, err := cache.Get(ctx, "ABC123", "name:alice")
	if err != nil || ok {
		t.Fatalf("expected expiry, ok=%v err=%v", ok, err)
	}
}

func TestMarkRoomLive(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestClient(t)
	cache := NewSessionCache(client, time.Hour)

	cache.MarkRoomLive(ctx, "room-1")
	if !mr.Exists("room:live:room-1") {
		t.Fatalf("expected liveness marker")
	}
	if ttl := mr.TTL("room:live:room-1"); ttl <= 0 {
		t.Fatalf("expected marker to carry a TTL, got %v", ttl)
	}
}
