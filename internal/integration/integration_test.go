package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-engine/internal/app"
	"trivia-engine/internal/domain"
	"trivia-engine/internal/engine"
	pgstore "trivia-engine/internal/infra/postgres"
	pgmigrations "trivia-engine/internal/infra/postgres/migrations"
	infraredis "trivia-engine/internal/infra/redis"
)

func TestSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedCatalog(t, ctx, pgURL, "science", 2, sampleCatalog())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	catalog := infraredis.NewCatalogCache(redisClient, pgstore.NewCatalogLoader(pool), 5*time.Minute)
	authority := pgstore.NewSessionRepository(pool, catalog)
	registry := infraredis.NewRegistry(redisClient, 5*time.Minute)
	service := app.NewSessionService(registry, func() *engine.Machine {
		return engine.NewMachine(engine.Config{Repository: authority})
	}, nil)

	id, snap, err := service.Start(ctx, "u1", "science", 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if n, _ := redisClient.Exists(ctx, infraredis.Key(id)).Result(); n != 1 {
		t.Fatalf("expected liveness marker for %s", id)
	}
	results, err := service.Sync(id)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}

	for snap.Status == domain.StatusAwaitingAnswer {
		snap, err = service.SubmitAnswer(ctx, id, correctOption(t, snap))
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	// 10 (default score) + 25, doubled on difficulty 2
	if snap.Status != domain.StatusWon || snap.Score != 70 {
		t.Fatalf("expected won with 70, got %s with %d", snap.Status, snap.Score)
	}

	res := <-results
	if res.Err != nil {
		t.Fatalf("finish: %v", res.Err)
	}
	score, finished, err := authority.FinalScore(ctx, res.SessionID)
	if err != nil || !finished || score != 70 {
		t.Fatalf("expected ledger score 70, got score=%d finished=%v err=%v", score, finished, err)
	}
	if err := authority.FinishSession(ctx, res.SessionID, 99); !errors.Is(err, domain.ErrAlreadyFinished) {
		t.Fatalf("expected already finished, got %v", err)
	}

	// the catalog was cached on first use
	if n, _ := redisClient.Exists(ctx, "trivia:catalog:science:2").Result(); n != 1 {
		t.Fatalf("expected cached catalog in redis")
	}
}

func TestEmptyCategoryEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	seedCatalog(t, ctx, pgURL, "science", 1, nil)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	authority := pgstore.NewSessionRepository(pool, pgstore.NewCatalogLoader(pool))
	m := engine.NewMachine(engine.Config{Repository: authority})

	snap, err := m.Start(ctx, "u1", "history", 1)
	if !errors.Is(err, domain.ErrEmptyCatalog) {
		t.Fatalf("expected empty catalog, got %v", err)
	}
	if snap.Status != domain.StatusLost || snap.SessionID == "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, finished, _ := authority.FinalScore(ctx, snap.SessionID); finished {
		t.Fatalf("empty catalog session must not be finalized")
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "trivia", "POSTGRES_PASSWORD": "triviapass", "POSTGRES_DB": "triviadb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://trivia:triviapass@%s:%s/triviadb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedCatalog(t *testing.T, ctx context.Context, dsn, categoryID string, difficultyID int, questions []domain.CatalogQuestion) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			t.Fatalf("marshal question: %v", err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO questions (id, category_id, difficulty_id, data) VALUES (?, ?, ?, ?::jsonb)`,
			q.ID, categoryID, difficultyID, string(data)); err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}
}

func sampleCatalog() []domain.CatalogQuestion {
	score := 25
	return []domain.CatalogQuestion{
		{
			ID:        "q1",
			Statement: "What is the chemical symbol for gold?",
			Options: []domain.Option{
				{ID: "o1", Text: "Ag"},
				{ID: "o2", Text: "Au", Correct: true},
			},
		},
		{
			ID:        "q2",
			Statement: "What gas do plants absorb?",
			Score:     &score,
			Options: []domain.Option{
				{ID: "o1", Text: "Carbon dioxide", Correct: true},
				{ID: "o2", Text: "Oxygen"},
			},
		},
	}
}

func correctOption(t *testing.T, snap domain.Snapshot) string {
	t.Helper()
	if snap.CurrentQuestion == nil {
		t.Fatalf("no current question in %+v", snap)
	}
	for _, opt := range snap.CurrentQuestion.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	t.Fatalf("no correct option")
	return ""
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
