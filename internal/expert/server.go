// Package expert 专家服务：把一个数据描述符的专家循环发布为 A2A 智能体，
// 启动后注册名片并维持心跳，退出时注销。
package expert

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/bootstrap"
	"github.com/kart-io/dataagent/internal/expert/agent"
	"github.com/kart-io/dataagent/internal/expert/handler"
	"github.com/kart-io/dataagent/internal/expert/router"
	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/registry"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/pkg/app"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/infra/server"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	dataservicesopts "github.com/kart-io/dataagent/pkg/options/dataservices"
	expertopts "github.com/kart-io/dataagent/pkg/options/expert"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"
	logopts "github.com/kart-io/dataagent/pkg/options/logger"
	milvusopts "github.com/kart-io/dataagent/pkg/options/milvus"
	qdrantopts "github.com/kart-io/dataagent/pkg/options/qdrant"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
	registryopts "github.com/kart-io/dataagent/pkg/options/registry"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
	httpopts "github.com/kart-io/dataagent/pkg/options/server/http"
	sourceopts "github.com/kart-io/dataagent/pkg/options/source"
)

// Name is the name of the application.
const Name = "dataagent-expert"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions         *httpopts.Options
	GRPCOptions         *grpcopts.Options
	LogOptions          *logopts.Options
	TracingOptions      *tracing.Options
	RedisOptions        *redisopts.Options
	RegistryOptions     *registryopts.Options
	LLMOptions          *llmopts.Options
	RetrievalOptions    *retrievalopts.Options
	DataServicesOptions *dataservicesopts.Options
	MilvusOptions       *milvusopts.Options
	QdrantOptions       *qdrantopts.Options
	SourceOptions       *sourceopts.Options
	ExpertOptions       *expertopts.Options
	ShutdownTimeout     time.Duration
}

// Server represents the expert server.
type Server struct {
	srv    *server.Manager
	boot   *bootstrap.Bootstrapper
	agent  *agent.Agent
	reader source.Reader
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 解析描述符
	bindings, err := descriptor.ParseTypes(cfg.ExpertOptions.DescriptorTypes)
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithCause(err)
	}
	binding, ok := descriptor.Primary(bindings)
	if !ok {
		return nil, errors.ErrInvalidConfig.WithMessage("expert.descriptor-types has no usable entry")
	}

	// 2. 初始化日志、追踪、Redis、LLM 与检索后端
	m := metrics.Default()
	redis := bootstrap.NewRedisInitializer(cfg.RedisOptions)
	llmInit := bootstrap.NewLLMInitializer(cfg.LLMOptions, m, redis)
	retrievalInit := bootstrap.NewRetrievalInitializer(&retrieval.Config{
		Retrieval:    cfg.RetrievalOptions,
		DataServices: cfg.DataServicesOptions,
		Milvus:       cfg.MilvusOptions,
		Qdrant:       cfg.QdrantOptions,
	}, llmInit)
	boot := bootstrap.New(
		bootstrap.NewLoggingInitializer(cfg.LogOptions, Name, app.GetVersion()),
		bootstrap.NewTracingInitializer(cfg.TracingOptions),
		redis,
		llmInit,
		retrievalInit,
	)
	if err := boot.Initialize(ctx); err != nil {
		_ = boot.Shutdown(ctx)
		return nil, err
	}

	s := &Server{boot: boot}
	fail := func(err error) (*Server, error) {
		s.close(ctx)
		return nil, err
	}

	// 3. 打开结构化数据源
	if binding.Type == descriptor.AgentStructured {
		s.reader, err = source.Open(ctx, binding.DBType, binding.Connection, cfg.SourceOptions)
		if err != nil {
			return fail(fmt.Errorf("failed to open %s source %q: %w", binding.DBType, binding.Name, err))
		}
	}
	logger.Infow("Expert bound to descriptor", "name", binding.Name, "type", binding.Type, "db_type", binding.DBType)

	// 4. 初始化专家
	collections := make([]string, 0, len(cfg.ExpertOptions.DataDescriptors))
	for _, name := range cfg.ExpertOptions.DataDescriptors {
		collections = append(collections, descriptor.CollectionID(cfg.ExpertOptions.Namespace, name))
	}
	s.agent, err = agent.New(llmInit.Chat(), binding, collections, cfg.ExpertOptions,
		agent.WithBackend(retrievalInit.Backend(), cfg.RetrievalOptions),
		agent.WithReader(s.reader),
		agent.WithGate(llmInit.Gate()),
		agent.WithMetrics(m),
	)
	if err != nil {
		return fail(err)
	}

	// 5. 初始化服务器与路由
	s.srv = server.NewManager(
		server.WithName(Name),
		server.WithHTTPOptions(cfg.HTTPOptions),
		server.WithGRPCOptions(cfg.GRPCOptions),
		server.WithMetrics(m),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	skills, err := LoadSkills(cfg.ExpertOptions.SkillsFile)
	if err != nil {
		return fail(err)
	}
	card := NewCard(cfg.ExpertOptions, s.srv.HTTPServer().Addr, skills)
	router.Register(s.srv, handler.NewExpertHandler(s.agent, cfg.ExpertOptions.DirectReturn), card.Card)

	// 6. 注册中心：心跳、名片注册与技能文件监听
	reg := registry.New(redis.Client(), cfg.RedisOptions.Database, cfg.RegistryOptions)
	if cfg.RegistryOptions.EnableNotifications {
		if err := reg.EnableNotifications(ctx); err != nil {
			logger.Warnw("Failed to enable keyspace notifications", "error", err)
		}
	}
	heartbeat := registry.NewHeartbeatService(reg)
	s.srv.AddServer(heartbeat)
	s.srv.AddServer(&announcer{heartbeat: heartbeat, card: card})
	s.srv.AddServer(NewSkillsWatcher(cfg.ExpertOptions.SkillsFile, func(skills []a2a.Skill) {
		card.SetSkills(skills)
		if err := heartbeat.Register(context.Background(), card.Card()); err != nil {
			logger.Errorw("Re-register card failed", "agent", cfg.ExpertOptions.Name, "error", err)
		}
	}))

	logger.Infow("Expert service is ready", "agent", cfg.ExpertOptions.Name, "collections", collections)
	return s, nil
}

// Run starts the server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.close(context.Background())
	return s.srv.Run(ctx)
}

func (s *Server) close(ctx context.Context) {
	if s.agent != nil {
		s.agent.Close()
	}
	if s.reader != nil {
		_ = s.reader.Close()
	}
	if err := s.boot.Shutdown(ctx); err != nil {
		logger.Errorw("Shutdown failed", "error", err)
	}
}

// announcer 在 HTTP 服务开始监听后注册名片，此时名片地址已确定。
type announcer struct {
	heartbeat *registry.HeartbeatService
	card      *Card
}

func (a *announcer) Name() string { return "card-announcer" }

func (a *announcer) Start(ctx context.Context) error {
	card := a.card.Card()
	if err := a.heartbeat.Register(ctx, card); err != nil {
		return fmt.Errorf("register agent card: %w", err)
	}
	logger.Infow("Agent registered", "name", card.Name, "url", card.URL, "skills", len(card.Skills))
	return nil
}

// Stop 无需处理，注销由心跳服务停止时完成。
func (a *announcer) Stop(context.Context) error { return nil }
