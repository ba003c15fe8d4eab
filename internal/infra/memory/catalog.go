package memory

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"trivia-engine/internal/domain"
)

// CatalogLoader fetches the question pool for a category and difficulty.
type CatalogLoader interface {
	LoadQuestions(ctx context.Context, categoryID string, difficultyID int) ([]domain.Question, error)
}

// CatalogKey identifies one question pool.
type CatalogKey struct {
	CategoryID   string
	DifficultyID int
}

func (k CatalogKey) String() string {
	return k.CategoryID + ":" + strconv.Itoa(k.DifficultyID)
}

// CatalogCache caches question pools with TTL to avoid repeated loader hits.
type CatalogCache struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[CatalogKey]cachedPool
}

type cachedPool struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCatalogCache(loader CatalogLoader, ttl time.Duration) *CatalogCache {
	return &CatalogCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[CatalogKey]cachedPool),
	}
}

func (c *CatalogCache) LoadQuestions(ctx context.Context, categoryID string, difficultyID int) ([]domain.Question, error) {
	key := CatalogKey{CategoryID: categoryID, DifficultyID: difficultyID}
	if questions, ok := c.lookup(key); ok {
		return questions, nil
	}

	result, err, _ := c.sf.Do(key.String(), func() (interface{}, error) {
		if questions, ok := c.lookup(key); ok {
			return questions, nil
		}

		questions, err := c.loader.LoadQuestions(ctx, categoryID, difficultyID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[key] = cachedPool{
			questions: questions,
			expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(result.([]domain.Question)), nil
}

func (c *CatalogCache) lookup(key CatalogKey) ([]domain.Question, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return clone(entry.questions), true
}

func (c *CatalogCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// clone keeps cached pools immune to callers mutating options.
func clone(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		q.Options = append([]domain.Option(nil), q.Options...)
		out[i] = q
	}
	return out
}

// StaticCatalogLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticCatalogLoader struct {
	pools map[CatalogKey][]domain.Question
}

func NewStaticCatalogLoader(pools map[CatalogKey][]domain.Question) *StaticCatalogLoader {
	return &StaticCatalogLoader{pools: pools}
}

func (l *StaticCatalogLoader) LoadQuestions(_ context.Context, categoryID string, difficultyID int) ([]domain.Question, error) {
	if questions, ok := l.pools[CatalogKey{CategoryID: categoryID, DifficultyID: difficultyID}]; ok {
		return clone(questions), nil
	}
	return nil, domain.ErrCatalogNotFound
}

// CatalogFile is the YAML layout read by FileCatalogLoader.
type CatalogFile struct {
	Pools []struct {
		CategoryID   string                   `yaml:"category_id"`
		DifficultyID int                      `yaml:"difficulty_id"`
		Questions    []domain.CatalogQuestion `yaml:"questions"`
	} `yaml:"pools"`
}

// NewFileCatalogLoader reads a YAML catalog from path.
func NewFileCatalogLoader(path string) (*StaticCatalogLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog. Missing scores default to domain.DefaultBaseScore.
func ParseCatalog(data []byte) (*StaticCatalogLoader, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	pools := make(map[CatalogKey][]domain.Question, len(file.Pools))
	for _, p := range file.Pools {
		key := CatalogKey{CategoryID: p.CategoryID, DifficultyID: p.DifficultyID}
		pools[key] = append(pools[key], domain.Questions(p.Questions)...)
	}
	return NewStaticCatalogLoader(pools), nil
}
