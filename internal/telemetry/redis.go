package telemetry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// MonitorRedis instruments the client with tracing, metrics and debug logging.
func MonitorRedis(r redis.UniversalClient) error {
	if err := redisotel.InstrumentTracing(r); err != nil {
		return fmt.Errorf("instrument tracing: %w", err)
	}
	if err := redisotel.InstrumentMetrics(r); err != nil {
		return fmt.Errorf("instrument metrics: %w", err)
	}
	r.AddHook(redisLogger{l: slog.Default()})
	return nil
}

type redisLogger struct {
	l *slog.Logger
}

func (h redisLogger) DialHook(hook redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := hook(ctx, network, addr)
		h.done(ctx, "redis: dial", err, "network", network, "addr", addr, "took", time.Since(start))
		return conn, err
	}
}

func (h redisLogger) ProcessHook(hook redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmd)
		h.done(ctx, "redis: command", err, "cmd", cmd.Name(), "took", time.Since(start))
		return err
	}
}

func (h redisLogger) ProcessPipelineHook(hook redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := hook(ctx, cmds)
		h.done(ctx, "redis: pipeline", err, "cmds", len(cmds), "took", time.Since(start))
		return err
	}
}

// done logs at debug. Misses are not failures.
func (h redisLogger) done(ctx context.Context, msg string, err error, args ...any) {
	if err != nil && !stderrors.Is(err, redis.Nil) {
		h.l.WarnContext(ctx, msg, append(args, "error", err)...)
		return
	}

	h.l.DebugContext(ctx, msg, args...)
}
