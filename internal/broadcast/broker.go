// Package broadcast fans room events out to subscribed connections. Delivery
// is at-least-once per subscriber and causally ordered within a room; the
// payloads are cache-invalidation signals, so consumers reconcile with a
// synchronous read rather than trusting the payload as authoritative.
package broadcast

import (
	"sync"

	"quizroom-service/internal/domain"
)

// EventKind tags what changed for a room.
type EventKind string

const (
	// KindRoom signals a room status or index change.
	KindRoom EventKind = "room"
	// KindQuestion signals a new current-question pointer.
	KindQuestion EventKind = "question"
	// KindPlayers signals a join/leave/score change; subscribers re-fetch the
	// leaderboard on receipt.
	KindPlayers EventKind = "players"
)

// Event is one room notification.
type Event struct {
	Kind     EventKind               `json:"kind"`
	RoomID   string                  `json:"roomId"`
	Room     *domain.Room            `json:"room,omitempty"`
	Question *domain.CurrentQuestion `json:"question,omitempty"`
}

// Publisher is the sending half of the broker, implemented locally below and
// by the redis relay for cross-instance delivery.
type Publisher interface {
	Publish(ev Event)
}

// Broker is an in-process pub/sub keyed by room id.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives events for one room until Close is called.
type Subscription struct {
	broker *Broker
	roomID string
	ch     chan Event
}

// Subscribe registers a new subscriber for the room. The caller owns the
// returned handle and must Close it on teardown or room switch.
func (b *Broker) Subscribe(roomID string) *Subscription {
	sub := &Subscription{
		broker: b,
		roomID: roomID,
		ch:     make(chan Event, 16),
	}
	b.mu.Lock()
	if b.subs[roomID] == nil {
		b.subs[roomID] = make(map[*Subscription]struct{})
	}
	b.subs[roomID][sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Events is the receive channel. It is closed by Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close tears the subscription down. It is idempotent, and once it returns no
// further event is delivered: publish and unregister share the broker mutex.
func (s *Subscription) Close() {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.subs[s.roomID]
	if !ok {
		return
	}
	if _, ok := room[s]; !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(b.subs, s.roomID)
	}
	close(s.ch)
}

// Publish delivers ev to every subscriber of its room. A full buffer sheds
// the oldest pending event so slow readers cannot stall the room; events for
// one room still arrive in publish order.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[ev.RoomID] {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- ev
		}
	}
}
