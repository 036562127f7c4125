// Package queue consumes ingestion jobs from NATS JetStream or Redis Streams.
// A job is acknowledged only after the handler succeeds; failed jobs are
// redelivered, invalid jobs are dropped.
package queue

import (
	"context"
	"time"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// Handler processes one ingestion job.
type Handler interface {
	Handle(ctx context.Context, job *descriptor.Job) error
}

// Publisher enqueues ingestion jobs.
type Publisher interface {
	Publish(ctx context.Context, job *descriptor.Job) error
}

// Decode parses a queue message body.
func Decode(data []byte) (*descriptor.Job, error) {
	var job descriptor.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.ErrInvalidDescriptor.WithCause(err)
	}
	return &job, nil
}

// permanent 判断失败是否不应重投。
func permanent(err error) bool {
	return errors.Is(err, errors.ErrInvalidDescriptor)
}

// backoff 计算消费循环出错后的等待时间，1s 起步翻倍，上限 30s。
func backoff(failures int) time.Duration {
	d := time.Second
	for i := 1; i < failures && d < 30*time.Second; i++ {
		d *= 2
	}
	return min(d, 30*time.Second)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
