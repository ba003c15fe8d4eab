package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-engine/internal/domain"
)

// CatalogLoader fetches the question pool for a category and difficulty.
type CatalogLoader interface {
	LoadQuestions(ctx context.Context, categoryID string, difficultyID int) ([]domain.Question, error)
}

// CatalogCache keeps question pools in Redis and falls back to a loader on miss.
// Pools are stored as a JSON array: SET trivia:catalog:{categoryID}:{difficultyID} [...]
type CatalogCache struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCatalogCache(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CatalogCache) LoadQuestions(ctx context.Context, categoryID string, difficultyID int) ([]domain.Question, error) {
	key := c.key(categoryID, difficultyID)
	if questions, ok := c.cached(ctx, key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if questions, ok := c.cached(ctx, key); ok {
			return questions, nil
		}

		questions, err := c.loader.LoadQuestions(ctx, categoryID, difficultyID)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		// best-effort write; a failed write only costs a reload
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *CatalogCache) cached(ctx context.Context, key string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

// Invalidate drops a cached pool.
func (c *CatalogCache) Invalidate(ctx context.Context, categoryID string, difficultyID int) error {
	return c.client.Del(ctx, c.key(categoryID, difficultyID)).Err()
}

func (c *CatalogCache) key(categoryID string, difficultyID int) string {
	return "trivia:catalog:" + categoryID + ":" + strconv.Itoa(difficultyID)
}

func (c *CatalogCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
