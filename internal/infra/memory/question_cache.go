package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// QuestionCache caches each room's question list with a TTL so many players
// loading the same quiz do not fan duplicate reads into the store. Questions
// are immutable once a quiz starts, which is the only window the cache
// serves.
type QuestionCache struct {
	source app.QuestionSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(source app.QuestionSource, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestions),
	}
}

func (c *QuestionCache) Questions(ctx context.Context, roomID string) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[roomID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(roomID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[roomID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.source.Questions(ctx, roomID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[roomID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops a room's entry, used when the host edits questions before
// the quiz starts.
func (c *QuestionCache) Invalidate(_ context.Context, roomID string) {
	c.mu.Lock()
	delete(c.cache, roomID)
	c.mu.Unlock()
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StoreQuestionSource adapts an app.Store's question listing to the
// QuestionSource the caches wrap.
type StoreQuestionSource struct {
	store app.Store
}

func NewStoreQuestionSource(store app.Store) *StoreQuestionSource {
	return &StoreQuestionSource{store: store}
}

func (s *StoreQuestionSource) Questions(ctx context.Context, roomID string) ([]domain.Question, error) {
	return s.store.ListQuestions(ctx, roomID)
}
