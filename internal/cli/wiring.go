package cli

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"trivia-engine/internal/app"
	"trivia-engine/internal/config"
	"trivia-engine/internal/difficulty"
	"trivia-engine/internal/domain"
	"trivia-engine/internal/engine"
	"trivia-engine/internal/infra/memory"
	pgstore "trivia-engine/internal/infra/postgres"
	redisstore "trivia-engine/internal/infra/redis"
	"trivia-engine/internal/metrics"
)

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// baseCatalog picks where questions come from: postgres, a YAML file, or the built-in sample.
func baseCatalog(cfg config.Config, pool *pgxpool.Pool) (memory.CatalogLoader, error) {
	switch {
	case pool != nil:
		return pgstore.NewCatalogLoader(pool), nil
	case cfg.Catalog.Path != "":
		return memory.NewFileCatalogLoader(cfg.Catalog.Path)
	default:
		return memory.NewStaticCatalogLoader(sampleCatalog()), nil
	}
}

func cachedCatalog(cfg config.Config, loader memory.CatalogLoader, client *redis.Client) memory.CatalogLoader {
	ttl := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	if client != nil {
		return redisstore.NewCatalogCache(client, loader, ttl)
	}
	return memory.NewCatalogCache(loader, ttl)
}

func newRegistry(cfg config.Config, client *redis.Client) app.SessionRegistry {
	if client != nil {
		return redisstore.NewRegistry(client, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	}
	return memory.NewRegistry()
}

func machineFactory(cfg config.Config, repo engine.SessionRepository, policy *difficulty.Policy, m *metrics.Metrics, logger *slog.Logger) app.MachineFactory {
	return func() *engine.Machine {
		return engine.NewMachine(engine.Config{
			Repository:    repo,
			Policy:        policy,
			StartTimeout:  cfg.StartTimeout(),
			FinishTimeout: cfg.FinishTimeout(),
			Rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
			Metrics:       m,
			Logger:        logger,
		})
	}
}

func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Postgres.URL == "" {
		return nil, nil
	}
	return pgxpool.Connect(ctx, cfg.Postgres.URL)
}

// sampleCatalog provides a minimal question pool; point catalog.path or postgres.url at real content.
func sampleCatalog() map[memory.CatalogKey][]domain.Question {
	q := func(id, statement string, score int, correct string, options ...string) domain.Question {
		question := domain.Question{ID: id, Statement: statement, BaseScore: score}
		for i, text := range options {
			question.Options = append(question.Options, domain.Option{
				ID:      id + "-o" + string(rune('1'+i)),
				Text:    text,
				Correct: text == correct,
			})
		}
		return question
	}
	general := []domain.Question{
		q("g1", "What is 2 + 2?", 10, "4", "3", "4", "5"),
		q("g2", "Which planet is known as the red planet?", 10, "Mars", "Venus", "Mars", "Jupiter"),
		q("g3", "How many continents are there?", 10, "7", "5", "6", "7"),
	}
	return map[memory.CatalogKey][]domain.Question{
		{CategoryID: "general", DifficultyID: 1}: general,
		{CategoryID: "general", DifficultyID: 2}: general,
		{CategoryID: "general", DifficultyID: 3}: general,
	}
}
