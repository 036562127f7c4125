// Package ingestor 入库服务：接收数据描述符的创建/删除任务，生成指纹并发布检索集合。
// 任务可通过 HTTP 同步提交，也可来自 NATS JetStream 或 Redis Streams 队列。
package ingestor

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/bootstrap"
	"github.com/kart-io/dataagent/internal/ingestor/biz"
	"github.com/kart-io/dataagent/internal/ingestor/handler"
	"github.com/kart-io/dataagent/internal/ingestor/queue"
	"github.com/kart-io/dataagent/internal/ingestor/router"
	"github.com/kart-io/dataagent/internal/ingestor/store"
	"github.com/kart-io/dataagent/internal/pkg/fingerprint"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	"github.com/kart-io/dataagent/pkg/app"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/infra/pool"
	"github.com/kart-io/dataagent/pkg/infra/server"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	dataservicesopts "github.com/kart-io/dataagent/pkg/options/dataservices"
	dbopts "github.com/kart-io/dataagent/pkg/options/db"
	fpopts "github.com/kart-io/dataagent/pkg/options/fingerprint"
	ingestopts "github.com/kart-io/dataagent/pkg/options/ingest"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"
	logopts "github.com/kart-io/dataagent/pkg/options/logger"
	milvusopts "github.com/kart-io/dataagent/pkg/options/milvus"
	natsopts "github.com/kart-io/dataagent/pkg/options/nats"
	qdrantopts "github.com/kart-io/dataagent/pkg/options/qdrant"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
	httpopts "github.com/kart-io/dataagent/pkg/options/server/http"
	sourceopts "github.com/kart-io/dataagent/pkg/options/source"
)

// Name is the name of the application.
const Name = "dataagent-ingestor"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions         *httpopts.Options
	GRPCOptions         *grpcopts.Options
	LogOptions          *logopts.Options
	TracingOptions      *tracing.Options
	RedisOptions        *redisopts.Options
	LLMOptions          *llmopts.Options
	RetrievalOptions    *retrievalopts.Options
	DataServicesOptions *dataservicesopts.Options
	MilvusOptions       *milvusopts.Options
	QdrantOptions       *qdrantopts.Options
	DBOptions           *dbopts.Options
	SourceOptions       *sourceopts.Options
	FingerprintOptions  *fpopts.Options
	NATSOptions         *natsopts.Options
	IngestOptions       *ingestopts.Options
	ShutdownTimeout     time.Duration
}

// Server represents the ingestor server.
type Server struct {
	srv   *server.Manager
	boot  *bootstrap.Bootstrapper
	pools *pool.Manager
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志、追踪、Redis、LLM、数据库、检索后端与 NATS
	m := metrics.Default()
	redis := bootstrap.NewOptionalRedisInitializer(cfg.RedisOptions)
	llmInit := bootstrap.NewLLMInitializer(cfg.LLMOptions, m, redis)
	database := bootstrap.NewDatabaseInitializer(cfg.DBOptions)
	retrievalInit := bootstrap.NewRetrievalInitializer(&retrieval.Config{
		Retrieval:    cfg.RetrievalOptions,
		DataServices: cfg.DataServicesOptions,
		Milvus:       cfg.MilvusOptions,
		Qdrant:       cfg.QdrantOptions,
	}, llmInit)
	natsInit := bootstrap.NewNATSInitializer(cfg.NATSOptions)
	boot := bootstrap.New(
		bootstrap.NewLoggingInitializer(cfg.LogOptions, Name, app.GetVersion()),
		bootstrap.NewTracingInitializer(cfg.TracingOptions),
		redis,
		llmInit,
		database,
		retrievalInit,
		natsInit,
	)
	if err := boot.Initialize(ctx); err != nil {
		_ = boot.Shutdown(ctx)
		return nil, err
	}

	s := &Server{boot: boot, pools: pool.NewManager()}
	fail := func(err error) (*Server, error) {
		s.close(ctx)
		return nil, err
	}

	// 2. 指纹表
	if err := store.AutoMigrate(database.DB()); err != nil {
		return fail(err)
	}
	fps := store.NewFingerprints(database.DB())

	// 3. 协程池、指纹引擎与协调器
	fpPool, err := s.pools.Register(pool.FingerprintPool, &pool.Config{
		Capacity:       cfg.LLMOptions.MaxConcurrent,
		ExpiryDuration: time.Minute,
	})
	if err != nil {
		return fail(err)
	}
	summaryPool, err := s.pools.Register(pool.SummaryPool, &pool.Config{
		Capacity:       cfg.IngestOptions.SummaryConcurrency,
		ExpiryDuration: time.Minute,
	})
	if err != nil {
		return fail(err)
	}

	engine := fingerprint.NewEngine(llmInit.Chat(), fpPool, cfg.FingerprintOptions)
	coord := biz.New(engine, fps, retrievalInit.Backend(), summaryPool, cfg.IngestOptions, cfg.SourceOptions,
		biz.WithMetrics(m),
	)

	// 4. 初始化服务器
	s.srv = server.NewManager(
		server.WithName(Name),
		server.WithHTTPOptions(cfg.HTTPOptions),
		server.WithGRPCOptions(cfg.GRPCOptions),
		server.WithMetrics(m),
		server.WithShutdownTimeout(cfg.ShutdownTimeout),
	)

	// 5. 队列消费者，JetStream 优先作为异步提交的发布端
	var publisher queue.Publisher
	if client := natsInit.Client(); client != nil {
		nopts := client.Options()
		js := queue.NewJetStream(client, coord, nopts.NakDelay, nopts.AckWait)
		s.srv.AddServer(js)
		publisher = js
	}
	if cfg.IngestOptions.RedisStream != "" {
		if rdb := redis.Client(); rdb != nil {
			rs := queue.NewRedisStream(rdb, coord, cfg.IngestOptions)
			s.srv.AddServer(rs)
			if publisher == nil {
				publisher = rs
			}
		} else {
			logger.Warnw("Redis stream configured but Redis is unavailable", "stream", cfg.IngestOptions.RedisStream)
		}
	}

	// 6. 路由
	router.Register(s.srv, handler.NewIngestHandler(coord, fps, publisher))

	logger.Infow("Ingestor service is ready",
		"mode", cfg.IngestOptions.SQLProcessMode,
		"batch_size", cfg.IngestOptions.SQLBatchSize,
		"queue", publisher != nil,
	)
	return s, nil
}

// Run starts the server and blocks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.close(context.Background())
	return s.srv.Run(ctx)
}

func (s *Server) close(ctx context.Context) {
	s.pools.ReleaseAll(10 * time.Second)
	if err := s.boot.Shutdown(ctx); err != nil {
		logger.Errorw("Shutdown failed", "error", err)
	}
}
