package queue

import (
	"context"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// Stream is the JetStream side used by the consumer, implemented by the nats component.
type Stream interface {
	Consumer(ctx context.Context) (jetstream.Consumer, error)
	Publish(ctx context.Context, data []byte) error
}

// JetStream 从 JetStream durable consumer 逐条拉取任务。
// 处理期间定期上报 InProgress，失败时按 nakDelay 延迟重投。
type JetStream struct {
	stream   Stream
	handler  Handler
	nakDelay time.Duration
	ackWait  time.Duration

	cc     jetstream.ConsumeContext
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Publisher = (*JetStream)(nil)

// NewJetStream creates a JetStream consumer.
func NewJetStream(stream Stream, h Handler, nakDelay, ackWait time.Duration) *JetStream {
	return &JetStream{stream: stream, handler: h, nakDelay: nakDelay, ackWait: ackWait}
}

// Name implements server.Runnable.
func (j *JetStream) Name() string { return "jetstream-consumer" }

// Start implements server.Runnable.
func (j *JetStream) Start(ctx context.Context) error {
	consumer, err := j.stream.Consumer(ctx)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.cc, err = consumer.Consume(func(msg jetstream.Msg) {
		j.wg.Add(1)
		defer j.wg.Done()
		j.process(wctx, msg)
	}, jetstream.PullMaxMessages(1))
	if err != nil {
		cancel()
		return err
	}
	logger.Info("JetStream consumer started")
	return nil
}

// Stop implements server.Runnable. The running job is cancelled and redelivered later.
func (j *JetStream) Stop(ctx context.Context) error {
	if j.cc == nil {
		return nil
	}
	j.cc.Stop()
	j.cancel()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
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
func (j *JetStream) Publish(ctx context.Context, job *descriptor.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return j.stream.Publish(ctx, data)
}

func (j *JetStream) process(ctx context.Context, msg jetstream.Msg) {
	job, err := Decode(msg.Data())
	if err != nil {
		logger.Errorw("Dropping malformed job", "error", err)
		_ = msg.TermWithReason("malformed job")
		return
	}

	stop := j.keepAlive(ctx, msg)
	err = j.handler.Handle(ctx, job)
	stop()

	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			logger.Warnw("Ack failed", "job", job.Key(), "error", err)
		}
	case permanent(err):
		logger.Errorw("Dropping invalid job", "job", job.Key(), "error", err)
		_ = msg.TermWithReason(err.Error())
	default:
		delivered := uint64(0)
		if md, mdErr := msg.Metadata(); mdErr == nil {
			delivered = md.NumDelivered
		}
		logger.Warnw("Job failed, redelivering", "job", job.Key(), "delivered", delivered, "delay", j.nakDelay.String(), "error", err)
		_ = msg.NakWithDelay(j.nakDelay)
	}
}

// keepAlive 在任务执行期间每 ackWait/2 上报一次 InProgress。
func (j *JetStream) keepAlive(ctx context.Context, msg jetstream.Msg) func() {
	if j.ackWait <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(j.ackWait / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = msg.InProgress()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
