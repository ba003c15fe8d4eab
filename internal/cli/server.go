package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-engine/internal/app"
	"trivia-engine/internal/config"
	"trivia-engine/internal/difficulty"
	"trivia-engine/internal/engine"
	"trivia-engine/internal/infra/memory"
	pgstore "trivia-engine/internal/infra/postgres"
	"trivia-engine/internal/infra/sqlite"
	"trivia-engine/internal/metrics"
	"trivia-engine/internal/telemetry"
	transport "trivia-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := telemetry.MonitorRedis(redisClient, logger); err != nil {
			return err
		}
	}

	pool, err := connectPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	loader, err := baseCatalog(cfg, pool)
	if err != nil {
		return err
	}
	catalog := cachedCatalog(cfg, loader, redisClient)

	var authority engine.SessionRepository
	switch {
	case pool != nil:
		authority = pgstore.NewSessionRepository(pool, catalog)
	case cfg.SQLite.Path != "":
		ledger, err := sqlite.Open(cfg.SQLite.Path, catalog)
		if err != nil {
			return err
		}
		defer ledger.Close()
		authority = ledger
	default:
		authority = memory.NewAuthority(catalog)
	}

	policy, err := difficulty.NewPolicy(cfg.DifficultyTable())
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	service := app.NewSessionService(newRegistry(cfg, redisClient), machineFactory(cfg, authority, policy, m, logger), logger)
	wsHandler := transport.NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("server: listening", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("server: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server: shutdown HTTP failed", "error", err)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			logger.Error("server: pending score reports abandoned", "error", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("server: shutdown completed")
	return nil
}
