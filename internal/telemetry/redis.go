package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments the client used for catalog caching and session
// liveness with OpenTelemetry and logs every command through logger.
func MonitorRedis(r redis.UniversalClient, logger *slog.Logger) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(NewRedisLog(logger))
	return nil
}

// RedisLog is a go-redis hook writing commands at debug level and failures at warn.
type RedisLog struct {
	logger *slog.Logger
}

func NewRedisLog(logger *slog.Logger) RedisLog {
	if logger == nil {
		logger = slog.Default()
	}
	return RedisLog{logger: logger}
}

func (l RedisLog) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := hook(ctx, network, addr)
		if err != nil {
			l.logger.WarnContext(ctx, "redis: dial failed", "network", network, "addr", addr, "error", err)
			return conn, err
		}
		l.logger.DebugContext(ctx, "redis: dialed", "network", network, "addr", addr)
		return conn, nil
	}
}

func (l RedisLog) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		l.log(ctx, cmd.Name(), time.Since(start), err)
		return err
	}
}

func (l RedisLog) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		l.log(ctx, fmt.Sprintf("pipeline(%d)", len(cmds)), time.Since(start), err)
		return err
	}
}

func (l RedisLog) log(ctx context.Context, name string, took time.Duration, err error) {
	// a cache miss is not a failure
	if err != nil && err != redis.Nil {
		l.logger.WarnContext(ctx, "redis: command failed", "cmd", name, "took", took, "error", err)
		return
	}
	l.logger.DebugContext(ctx, "redis: command", "cmd", name, "took", took)
}
