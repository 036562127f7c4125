package bootstrap

import (
	"context"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/kart-io/dataagent/pkg/component/db"
	"github.com/kart-io/dataagent/pkg/component/nats"
	"github.com/kart-io/dataagent/pkg/component/redis"
	dbopts "github.com/kart-io/dataagent/pkg/options/db"
	natsopts "github.com/kart-io/dataagent/pkg/options/nats"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
)

// RedisName Redis 初始化器名称。
const RedisName = "redis"

// RedisInitializer 连接 Redis。optional 为 true 且未配置 host 时跳过连接，Client 返回 nil。
type RedisInitializer struct {
	opts     *redisopts.Options
	optional bool
	client   *redis.Client
}

// NewRedisInitializer creates a RedisInitializer that fails when Redis is unreachable.
func NewRedisInitializer(opts *redisopts.Options) *RedisInitializer {
	return &RedisInitializer{opts: opts}
}

// NewOptionalRedisInitializer creates a RedisInitializer that is skipped when no host is configured.
func NewOptionalRedisInitializer(opts *redisopts.Options) *RedisInitializer {
	return &RedisInitializer{opts: opts, optional: true}
}

func (ri *RedisInitializer) Name() string           { return RedisName }
func (ri *RedisInitializer) Dependencies() []string { return []string{LoggingName} }

func (ri *RedisInitializer) Initialize(ctx context.Context) error {
	if ri.optional && (ri.opts == nil || ri.opts.Host == "") {
		logger.Info("Redis not configured, skipping")
		return nil
	}
	c, err := redis.New(ctx, ri.opts)
	if err != nil {
		return err
	}
	ri.client = c
	logger.Infow("Redis connected", "addr", ri.opts.Addr())
	return nil
}

// Client 返回 go-redis 客户端，未连接时为 nil。
func (ri *RedisInitializer) Client() *goredis.Client {
	if ri.client == nil {
		return nil
	}
	return ri.client.Client()
}

func (ri *RedisInitializer) Shutdown(_ context.Context) error {
	if ri.client == nil {
		return nil
	}
	return ri.client.Close()
}

// DatabaseName 数据库初始化器名称。
const DatabaseName = "database"

// DatabaseInitializer 通过 gorm 连接指纹库或历史库。
type DatabaseInitializer struct {
	opts   *dbopts.Options
	client *db.Client
}

// NewDatabaseInitializer creates a new DatabaseInitializer.
func NewDatabaseInitializer(opts *dbopts.Options) *DatabaseInitializer {
	return &DatabaseInitializer{opts: opts}
}

func (di *DatabaseInitializer) Name() string           { return DatabaseName }
func (di *DatabaseInitializer) Dependencies() []string { return []string{LoggingName} }

func (di *DatabaseInitializer) Initialize(ctx context.Context) error {
	c, err := db.New(ctx, di.opts)
	if err != nil {
		return err
	}
	di.client = c
	logger.Infow("Database connected", "driver", di.opts.Driver)
	return nil
}

// DB 返回 gorm 连接。
func (di *DatabaseInitializer) DB() *gorm.DB {
	if di.client == nil {
		return nil
	}
	return di.client.DB()
}

func (di *DatabaseInitializer) Shutdown(_ context.Context) error {
	if di.client == nil {
		return nil
	}
	return di.client.Close()
}

// NATSName NATS 初始化器名称。
const NATSName = "nats"

// NATSInitializer 连接 NATS 并准备 JetStream stream，未配置 URL 时跳过。
type NATSInitializer struct {
	opts   *natsopts.Options
	client *nats.Client
}

// NewNATSInitializer creates a new NATSInitializer.
func NewNATSInitializer(opts *natsopts.Options) *NATSInitializer {
	return &NATSInitializer{opts: opts}
}

func (ni *NATSInitializer) Name() string           { return NATSName }
func (ni *NATSInitializer) Dependencies() []string { return []string{LoggingName} }

func (ni *NATSInitializer) Initialize(ctx context.Context) error {
	if !ni.opts.Enabled() {
		logger.Info("NATS not configured, skipping")
		return nil
	}
	c, err := nats.New(ctx, ni.opts)
	if err != nil {
		return err
	}
	ni.client = c
	logger.Infow("NATS connected", "url", ni.opts.URL, "stream", ni.opts.Stream)
	return nil
}

// Client 返回 NATS 客户端，未连接时为 nil。
func (ni *NATSInitializer) Client() *nats.Client { return ni.client }

func (ni *NATSInitializer) Shutdown(_ context.Context) error {
	if ni.client == nil {
		return nil
	}
	return ni.client.Close()
}
