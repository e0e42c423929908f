package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"quizroom-service/internal/broadcast"
)

const relayPattern = "room.events.*"

// Relay bridges room events across instances over redis pub/sub. Publishing
// delivers locally first (the local broker carries the ordering contract),
// then republishes for other instances; Run feeds remote events back into the
// local broker, dropping this instance's own echoes by origin tag.
type Relay struct {
	client *goredis.Client
	local  *broadcast.Broker
	origin string
}

type relayEnvelope struct {
	Origin string          `json:"origin"`
	Event  broadcast.Event `json:"event"`
}

func NewRelay(client *goredis.Client, local *broadcast.Broker) *Relay {
	return &Relay{
		client: client,
		local:  local,
		origin: fmt.Sprintf("%08x", rand.New(rand.NewSource(time.Now().UnixNano())).Uint32()),
	}
}

var _ broadcast.Publisher = (*Relay)(nil)

func (r *Relay) Publish(ev broadcast.Event) {
	r.local.Publish(ev)

	data, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: ev})
	if err != nil {
		return
	}
	// Best effort: a dropped relay message is healed by reconcile-on-resume.
	_ = r.client.Publish(context.Background(), channelFor(ev.RoomID), data).Err()
}

// Run consumes remote events until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, relayPattern)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			r.local.Publish(env.Event)
		}
	}
}

func channelFor(roomID string) string {
	return "room.events." + roomID
}
