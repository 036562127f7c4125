// Package orchestrator 编排服务：跟随注册中心的专家目录，把用户问题规划为任务并分派给专家。
package orchestrator

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/bootstrap"
	"github.com/kart-io/dataagent/internal/orchestrator/biz"
	"github.com/kart-io/dataagent/internal/orchestrator/handler"
	"github.com/kart-io/dataagent/internal/orchestrator/router"
	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/internal/pkg/registry"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	"github.com/kart-io/dataagent/internal/pkg/session"
	"github.com/kart-io/dataagent/pkg/app"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/infra/server"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	dataservicesopts "github.com/kart-io/dataagent/pkg/options/dataservices"
	dbopts "github.com/kart-io/dataagent/pkg/options/db"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"
	logopts "github.com/kart-io/dataagent/pkg/options/logger"
	orchestratoropts "github.com/kart-io/dataagent/pkg/options/orchestrator"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
	registryopts "github.com/kart-io/dataagent/pkg/options/registry"
	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
	httpopts "github.com/kart-io/dataagent/pkg/options/server/http"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
)

// Name is the name of the application.
const Name = "dataagent-orchestrator"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions         *httpopts.Options
	GRPCOptions         *grpcopts.Options
	LogOptions          *logopts.Options
	TracingOptions      *tracing.Options
	RedisOptions        *redisopts.Options
	RegistryOptions     *registryopts.Options
	LLMOptions          *llmopts.Options
	DataServicesOptions *dataservicesopts.Options
	DBOptions           *dbopts.Options
	OrchestratorOptions *orchestratoropts.Options
	ShutdownTimeout     time.Duration
}

// Server represents the orchestrator server.
type Server struct {
	srv  *server.Manager
	boot *bootstrap.Bootstrapper
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	opts := cfg.OrchestratorOptions

	// 1. 初始化日志、追踪、Redis 与 LLM，历史记录存数据库时连接数据库
	m := metrics.Default()
	redis := bootstrap.NewRedisInitializer(cfg.RedisOptions)
	llmInit := bootstrap.NewLLMInitializer(cfg.LLMOptions, m, redis)
	boot := bootstrap.New(
		bootstrap.NewLoggingInitializer(cfg.LogOptions, Name, app.GetVersion()),
		bootstrap.NewTracingInitializer(cfg.TracingOptions),
		redis,
		llmInit,
	)
	var database *bootstrap.DatabaseInitializer
	if opts.EnableHistory && opts.HistoryBackend == orchestratoropts.HistoryDatabase {
		database = bootstrap.NewDatabaseInitializer(cfg.DBOptions)
		boot.Add(database)
	}
	if err := boot.Initialize(ctx); err != nil {
		_ = boot.Shutdown(ctx)
		return nil, err
	}

	// 2. 记忆与历史记录
	dataServices := retrieval.NewDataServicesClient(cfg.DataServicesOptions)
	var history session.History = session.NewHistoryClient(dataServices)
	if database != nil {
		store := session.NewHistoryStore(database.DB())
		if err := store.AutoMigrate(); err != nil {
			_ = boot.Shutdown(ctx)
			return nil, err
		}
		history = store
	}

	// 3. 专家目录与编排器
	reg := registry.New(redis.Client(), cfg.RedisOptions.Database, cfg.RegistryOptions)
	if cfg.RegistryOptions.EnableNotifications {
		if err := reg.EnableNotifications(ctx); err != nil {
			logger.Warnw("Failed to enable keyspace notifications", "error", err)
		}
	}
	directory := registry.NewDirectory(reg, func(ev registry.Event) {
		logger.Debugw("Agent directory changed", "agent", ev.Name, "type", ev.Type)
	})

	hc := httpclient.DefaultConfig()
	hc.Timeout = cfg.DataServicesOptions.Timeout
	hc.RetryCount = 0
	orch := biz.New(llmInit.Chat(), directory, a2a.NewClient(httpclient.NewClient(hc)), opts,
		biz.WithRanker(registry.NewRanker(llmInit.Embedding())),
		biz.WithMemory(session.NewMemoryClient(dataServices)),
		biz.WithHistory(history),
		biz.WithMetrics(m),
	)

	// 4. 初始化服务器与路由
	srv := server.NewManager(
		server.WithName(Name),
		server.WithHTTPOptions(cfg.HTTPOptions),
		server.WithGRPCOptions(cfg.GRPCOptions),
		server.WithMetrics(m),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	card := func() a2a.AgentCard {
		return a2a.AgentCard{
			Name:               opts.Name,
			Description:        opts.Description,
			URL:                a2a.ServiceURL("", srv.HTTPServer().Addr()),
			Version:            opts.Version,
			Capabilities:       a2a.Capabilities{Streaming: true},
			DefaultInputModes:  []string{"text"},
			DefaultOutputModes: []string{"text"},
		}
	}
	router.Register(srv, handler.NewOrchestratorHandler(opts.Name, orch), card)
	srv.AddServer(directory)

	logger.Infow("Orchestrator service is ready", "max_loops", opts.MaxLoops, "history", opts.EnableHistory, "debug", opts.Debug)
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
