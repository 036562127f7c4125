// Package registry 目录宿主服务：定期清除心跳过期的专家，并通过 HTTP 提供目录查询与排序。
package registry

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/bootstrap"
	"github.com/kart-io/dataagent/internal/pkg/registry"
	"github.com/kart-io/dataagent/internal/registry/handler"
	"github.com/kart-io/dataagent/internal/registry/router"
	"github.com/kart-io/dataagent/pkg/app"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/infra/server"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"
	logopts "github.com/kart-io/dataagent/pkg/options/logger"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
	registryopts "github.com/kart-io/dataagent/pkg/options/registry"
	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
	httpopts "github.com/kart-io/dataagent/pkg/options/server/http"
)

// Name is the name of the application.
const Name = "dataagent-registry"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions     *httpopts.Options
	GRPCOptions     *grpcopts.Options
	LogOptions      *logopts.Options
	TracingOptions  *tracing.Options
	RedisOptions    *redisopts.Options
	RegistryOptions *registryopts.Options
	LLMOptions      *llmopts.Options
	ShutdownTimeout time.Duration
}

// Server represents the registry host server.
type Server struct {
	srv  *server.Manager
	boot *bootstrap.Bootstrapper
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志、追踪、Redis 与 embedding
	m := metrics.Default()
	redis := bootstrap.NewRedisInitializer(cfg.RedisOptions)
	llmInit := bootstrap.NewLLMInitializer(cfg.LLMOptions, m, redis)
	boot := bootstrap.New(
		bootstrap.NewLoggingInitializer(cfg.LogOptions, Name, app.GetVersion()),
		bootstrap.NewTracingInitializer(cfg.TracingOptions),
		redis,
		llmInit,
	)
	if err := boot.Initialize(ctx); err != nil {
		_ = boot.Shutdown(ctx)
		return nil, err
	}

	// 2. 目录镜像与清理服务
	reg := registry.New(redis.Client(), cfg.RedisOptions.Database, cfg.RegistryOptions)
	if cfg.RegistryOptions.EnableNotifications {
		if err := reg.EnableNotifications(ctx); err != nil {
			logger.Warnw("Failed to enable keyspace notifications", "error", err)
		}
	}
	var directory *registry.Directory
	directory = registry.NewDirectory(reg, func(registry.Event) {
		m.RegistryAgents.Set(float64(directory.Len()))
	})
	cleanup := registry.NewCleanupService(reg, func(names []string) {
		logger.Infow("Expired agents purged", "names", names)
	})

	// 3. 初始化服务器与路由
	srv := server.NewManager(
		server.WithName(Name),
		server.WithHTTPOptions(cfg.HTTPOptions),
		server.WithGRPCOptions(cfg.GRPCOptions),
		server.WithMetrics(m),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	ranker := registry.NewRanker(llmInit.Embedding())
	router.Register(srv, handler.NewRegistryHandler(directory, reg, ranker, cfg.RegistryOptions.RankTopN))
	srv.AddServer(directory)
	srv.AddServer(cleanup)
	srv.AddServer(gaugeSeed{directory: directory, m: m})

	logger.Infow("Registry service is ready",
		"ttl", cfg.RegistryOptions.TTL,
		"cleanup_interval", cfg.RegistryOptions.CleanupInterval,
		"semantic_ranking", llmInit.Embedding() != nil,
	)
	return &Server{srv: srv, boot: boot}, nil
}

// Run starts the server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.boot.Shutdown(context.Background()); err != nil {
			logger.Errorw("Shutdown failed", "error", err)
		}
	}()
	return s.srv.Run(ctx)
}

// gaugeSeed 在目录完成首次加载后设置智能体数量。
type gaugeSeed struct {
	directory *registry.Directory
	m         *metrics.Metrics
}

func (g gaugeSeed) Name() string { return "registry-gauge" }

func (g gaugeSeed) Start(context.Context) error {
	g.m.RegistryAgents.Set(float64(g.directory.Len()))
	return nil
}

func (g gaugeSeed) Stop(context.Context) error { return nil }
