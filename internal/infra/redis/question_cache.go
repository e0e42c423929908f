package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// QuestionCache caches each room's question list in Redis as a JSON blob and
// falls back to the source on a miss. Stored as:
// SET room:{roomID}:questions {json} EX {ttl}
type QuestionCache struct {
	client *goredis.Client
	source app.QuestionSource
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *goredis.Client, source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, roomID string) ([]domain.Question, error) {
	key := c.key(roomID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(raw, &questions); err == nil {
			return questions, nil
		}
		// Corrupt entry, fall through to reload.
	}

	result, err, _ := c.sf.Do(roomID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(raw, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := c.source.Questions(ctx, roomID)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(questions)
		if err != nil {
			return nil, fmt.Errorf("marshal questions: %w", err)
		}
		_ = c.client.Set(ctx, key, data, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops a room's cached questions after host edits.
func (c *QuestionCache) Invalidate(ctx context.Context, roomID string) {
	_ = c.client.Del(ctx, c.key(roomID)).Err()
}

func (c *QuestionCache) key(roomID string) string {
	return "room:" + roomID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
