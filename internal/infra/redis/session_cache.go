package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"quizroom-service/internal/domain"
)

// DefaultSessionTTL is the freshness window for persisted rejoin sessions.
const DefaultSessionTTL = 24 * time.Hour

// SessionCache persists player rejoin sessions keyed by (room code, identity
// key), the server-side mirror of the client's stored session. Entries are a
// soft cache: misses and stale entries just mean the player re-joins.
// Stored as: SET session:{code}:{key} {json} EX {ttl}
type SessionCache struct {
	client *goredis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewSessionCache(client *goredis.Client, ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionCache{client: client, ttl: ttl, clock: time.Now}
}

// Save records a session after a successful join.
func (c *SessionCache) Save(ctx context.Context, identityKey string, sess domain.PlayerSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(sess.RoomCode, identityKey), data, c.ttl).Err()
}

// Get resolves a fresh session, reporting false on miss or staleness.
func (c *SessionCache) Get(ctx context.Context, roomCode, identityKey string) (domain.PlayerSession, bool, error) {
	raw, err := c.client.Get(ctx, c.key(roomCode, identityKey)).Bytes()
	if err == goredis.Nil {
		return domain.PlayerSession{}, false, nil
	}
	if err != nil {
		return domain.PlayerSession{}, false, err
	}
	var sess domain.PlayerSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domain.PlayerSession{}, false, nil
	}
	if c.clock().Sub(sess.Timestamp) > c.ttl {
		_ = c.client.Del(ctx, c.key(roomCode, identityKey)).Err()
		return domain.PlayerSession{}, false, nil
	}
	return sess, true, nil
}

// MarkRoomLive writes a TTL'd liveness marker so deployments can
// garbage-collect abandoned rooms. Best effort, nothing reads it in the core.
func (c *SessionCache) MarkRoomLive(ctx context.Context, roomID string) {
	_ = c.client.Set(ctx, "room:live:"+roomID, "1", c.ttl).Err()
}

func (c *SessionCache) key(roomCode, identityKey string) string {
	return "session:" + domain.NormalizeCode(roomCode) + ":" + identityKey
}
