package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/exam/internal/api"
	"github.com/victornm/exam/internal/attempt"
	"github.com/victornm/exam/internal/cache"
	"github.com/victornm/exam/internal/event"
	"github.com/victornm/exam/internal/exam"
	"github.com/victornm/exam/internal/guard"
	"github.com/victornm/exam/internal/question"
	"github.com/victornm/exam/internal/scoring"
	"github.com/victornm/exam/internal/store"
	"github.com/victornm/exam/internal/store/memory"
	"github.com/victornm/exam/internal/store/postgres"
	"github.com/victornm/exam/internal/telemetry"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Auth struct {
		Secret string
		Issuer string
	}

	Storage struct {
		Driver string
	}

	Postgres struct {
		Addr     string
		User     string
		Pass     string
		Name     string
		MaxConns int32
	}

	Redis struct {
		Cache struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}
}

// DefaultConfig is overridden by the config file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Auth.Issuer = "exam"
	c.Storage.Driver = StoragePostgres
	c.Postgres.MaxConns = 10
	c.Redis.Cache.Prefix = "exam:cache"
	c.Redis.Cache.TTL = 5 * time.Minute
	c.Redis.Pubsub.Prefix = "exam"
	return c
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *telemetry.Metrics

	infra struct {
		redis struct {
			cache  redis.UniversalClient
			pubsub redis.UniversalClient
		}

		postgres *pgxpool.Pool
		store    store.Store
	}

	service struct {
		exam    *exam.Service
		attempt *attempt.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	if c.Auth.Secret == "" {
		return nil, errors.New("server: auth secret is required")
	}

	s := &Server{c: c}

	s.eb = event.NewBus()
	s.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	s.metrics.Observe(s.eb)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStore(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect(s.c.Redis.Cache.Addrs, s.c.Redis.Cache.Pass)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initStore() error {
	switch s.c.Storage.Driver {
	case StorageMemory:
		slog.Warn("server: using in-memory storage, data is lost on restart")
		s.infra.store = memory.New()
		return nil
	case StoragePostgres, "":
	default:
		return fmt.Errorf("unknown storage driver %q", s.c.Storage.Driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pg.User, pg.Pass, pg.Addr, pg.Name))
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if pg.MaxConns > 0 {
		cc.MaxConns = pg.MaxConns
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres: %w", err)
	}

	st := postgres.New(db)
	if err := st.Migrate(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres: %w", err)
	}

	s.infra.postgres = db
	s.infra.store = st
	return nil
}

func (s *Server) initService() {
	registry := question.NewRegistry()

	s.service.exam = exam.NewService(exam.Config{
		Store:    s.infra.store,
		Registry: registry,
		Lock:     guard.NewLock(),
	})

	s.service.attempt = attempt.NewService(attempt.Config{
		Store:    s.infra.store,
		Registry: registry,
		Scoring:  scoring.NewEngine(),
		Cache: cache.New(cache.Config{
			Redis:  s.infra.redis.cache,
			Prefix: s.c.Redis.Cache.Prefix,
			TTL:    s.c.Redis.Cache.TTL,
		}),
		EventBus: s.eb,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", s.healthz)
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.GinLogger(), s.metrics.HTTP())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Exam:         s.service.exam,
		Attempt:      s.service.attempt,
		Verifier:     api.NewVerifier(s.c.Auth.Secret, s.c.Auth.Issuer),
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]error{
		"redis_cache":  s.infra.redis.cache.Ping(ctx).Err(),
		"redis_pubsub": s.infra.redis.pubsub.Ping(ctx).Err(),
	}
	if s.infra.postgres != nil {
		checks["postgres"] = s.infra.postgres.Ping(ctx)
	}

	status := http.StatusOK
	out := make(map[string]string, len(checks))
	for name, err := range checks {
		out[name] = "ok"
		if err != nil {
			status = http.StatusServiceUnavailable
			out[name] = err.Error()
		}
	}

	c.JSON(status, out)
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	// Pending notifications still need Redis, so the bus drains first.
	s.eb.Stop()
	s.infra.store.Close()

	for name, r := range map[string]redis.UniversalClient{
		"cache":  s.infra.redis.cache,
		"pubsub": s.infra.redis.pubsub,
	} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "redis", name, "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
