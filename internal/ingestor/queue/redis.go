package queue

import (
	"context"
	stderrors "errors"
	"os"
	"strings"
	"sync"

	"github.com/kart-io/logger"
	"github.com/redis/go-redis/v9"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	ingestopts "github.com/kart-io/dataagent/pkg/options/ingest"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// jobField 是 stream 条目中保存任务 JSON 的字段。
const jobField = "job"

// RedisStream 通过消费者组读取任务。失败的任务留在 PEL 中，
// 空闲超过 ClaimIdle 后由 XAUTOCLAIM 重新领取。
type RedisStream struct {
	rdb      *redis.Client
	handler  Handler
	opts     *ingestopts.Options
	consumer string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Publisher = (*RedisStream)(nil)

// NewRedisStream creates a Redis Streams consumer.
func NewRedisStream(rdb *redis.Client, h Handler, opts *ingestopts.Options) *RedisStream {
	consumer := opts.RedisConsumer
	if consumer == "" {
		consumer, _ = os.Hostname()
	}
	if consumer == "" {
		consumer = "ingestor"
	}
	return &RedisStream{rdb: rdb, handler: h, opts: opts, consumer: consumer}
}

// Name implements server.Runnable.
func (r *RedisStream) Name() string { return "redis-stream-consumer" }

// Start implements server.Runnable.
func (r *RedisStream) Start(ctx context.Context) error {
	if err := r.ensureGroup(ctx); err != nil {
		return err
	}
	wctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(wctx)
	}()
	logger.Infow("Redis stream consumer started", "stream", r.opts.RedisStream, "group", r.opts.RedisGroup, "consumer", r.consumer)
	return nil
}

// Stop implements server.Runnable.
func (r *RedisStream) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish implements Publisher.
func (r *RedisStream) Publish(ctx context.Context, job *descriptor.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.opts.RedisStream,
		Values: map[string]any{jobField: string(data)},
	}).Err()
}

func (r *RedisStream) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.opts.RedisStream, r.opts.RedisGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (r *RedisStream) run(ctx context.Context) {
	failures := 0
	for ctx.Err() == nil {
		if err := r.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			logger.Warnw("Redis stream poll failed", "stream", r.opts.RedisStream, "failures", failures, "error", err)
			if !sleep(ctx, backoff(failures)) {
				return
			}
			continue
		}
		failures = 0
	}
}

// poll 先领取超时未确认的任务，再阻塞读取新任务。
func (r *RedisStream) poll(ctx context.Context) error {
	claimed, _, err := r.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   r.opts.RedisStream,
		Group:    r.opts.RedisGroup,
		Consumer: r.consumer,
		MinIdle:  r.opts.ClaimIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		return err
	}
	for _, msg := range claimed {
		logger.Infow("Reclaimed pending job", "stream", r.opts.RedisStream, "id", msg.ID)
		r.process(ctx, msg)
	}

	streams, err := r.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.opts.RedisGroup,
		Consumer: r.consumer,
		Streams:  []string{r.opts.RedisStream, ">"},
		Count:    1,
		Block:    r.opts.BlockTimeout,
	}).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			r.process(ctx, msg)
		}
	}
	return nil
}

func (r *RedisStream) process(ctx context.Context, msg redis.XMessage) {
	raw, _ := msg.Values[jobField].(string)
	job, err := Decode([]byte(raw))
	if err != nil {
		logger.Errorw("Dropping malformed job", "id", msg.ID, "error", err)
		r.ack(ctx, msg.ID)
		return
	}

	err = r.handler.Handle(ctx, job)
	switch {
	case err == nil:
		r.ack(ctx, msg.ID)
	case permanent(err):
		logger.Errorw("Dropping invalid job", "id", msg.ID, "job", job.Key(), "error", err)
		r.ack(ctx, msg.ID)
	default:
		logger.Warnw("Job failed, left pending for reclaim", "id", msg.ID, "job", job.Key(), "error", err)
	}
}

func (r *RedisStream) ack(ctx context.Context, id string) {
	if err := r.rdb.XAck(ctx, r.opts.RedisStream, r.opts.RedisGroup, id).Err(); err != nil {
		logger.Warnw("XACK failed", "stream", r.opts.RedisStream, "id", id, "error", err)
	}
}
