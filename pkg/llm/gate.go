package llm

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kart-io/dataagent/pkg/infra/metrics"
)

// DefaultMaxConcurrent 进程内 LLM 调用默认并发上限。
const DefaultMaxConcurrent = 10

// Gate 是进程级计数信号量，所有 LLM 调用在发起前获取一个名额。
// 流式调用在 channel 关闭时归还名额。
type Gate struct {
	sem     *semaphore.Weighted
	size    int64
	metrics *metrics.Metrics
}

// NewGate 创建容量为 maxConcurrent 的闸门，maxConcurrent <= 0 时取默认值。
func NewGate(maxConcurrent int, m *metrics.Metrics) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Gate{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		size:    int64(maxConcurrent),
		metrics: m,
	}
}

// Size 返回闸门容量。
func (g *Gate) Size() int {
	return int(g.size)
}

// Acquire 获取一个名额，ctx 取消时返回 ctx.Err()。
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if g.metrics != nil {
		g.metrics.LLMInflight.Inc()
	}
	return func() {
		if g.metrics != nil {
			g.metrics.LLMInflight.Dec()
		}
		g.sem.Release(1)
	}, nil
}

// Do 在持有名额期间执行 fn。
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// WrapChat 返回经过闸门与指标统计的 ChatProvider。
func (g *Gate) WrapChat(p ChatProvider) ChatProvider {
	return &gatedChat{gate: g, next: p}
}

// WrapEmbedding 返回经过闸门与指标统计的 EmbeddingProvider。
func (g *Gate) WrapEmbedding(p EmbeddingProvider) EmbeddingProvider {
	return &gatedEmbedding{gate: g, next: p}
}

type gatedChat struct {
	gate *Gate
	next ChatProvider
}

func (c *gatedChat) Name() string { return c.next.Name() }

func (c *gatedChat) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	var out string
	start := time.Now()
	err := c.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.next.Chat(ctx, messages, opts...)
		return err
	})
	c.gate.metrics.ObserveLLM(c.next.Name(), "chat", start, err)
	return out, err
}

func (c *gatedChat) ChatStream(ctx context.Context, messages []Message, opts ...ChatOption) (<-chan StreamChunk, error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	in, err := c.next.ChatStream(ctx, messages, opts...)
	if err != nil {
		release()
		c.gate.metrics.ObserveLLM(c.next.Name(), "chat_stream", start, err)
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer release()
		var streamErr error
		defer func() { c.gate.metrics.ObserveLLM(c.next.Name(), "chat_stream", start, streamErr) }()
		for chunk := range in {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				streamErr = ctx.Err()
				// 排空上游，避免其 goroutine 阻塞
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}

type gatedEmbedding struct {
	gate *Gate
	next EmbeddingProvider
}

func (e *gatedEmbedding) Name() string { return e.next.Name() }

func (e *gatedEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	start := time.Now()
	err := e.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.next.Embed(ctx, texts)
		return err
	})
	e.gate.metrics.ObserveLLM(e.next.Name(), "embed", start, err)
	return out, err
}

func (e *gatedEmbedding) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	start := time.Now()
	err := e.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.next.EmbedSingle(ctx, text)
		return err
	})
	e.gate.metrics.ObserveLLM(e.next.Name(), "embed", start, err)
	return out, err
}
