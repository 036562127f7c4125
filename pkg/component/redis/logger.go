package redis

import (
	"context"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
)

// redisLogger 将 go-redis 内部日志（重连、pubsub 断开等）输出到统一日志。
type redisLogger struct{}

func (redisLogger) Printf(_ context.Context, format string, v ...interface{}) {
	logger.Warnf("redis: "+format, v...)
}

func init() {
	goredis.SetLogger(redisLogger{})
}
