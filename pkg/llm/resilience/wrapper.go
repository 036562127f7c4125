package resilience

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/kart-io/dataagent/pkg/llm"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
)

// Config 组合重试、熔断与限流配置。
type Config struct {
	Retry   *RetryConfig
	Breaker *CircuitBreakerConfig
	// RateLimit 每秒请求数，<= 0 表示不限流。
	RateLimit float64
	// Burst 限流桶容量，<= 0 时取 1。
	Burst int
}

// guard 共享的韧性执行器。
type guard struct {
	retry   *RetryConfig
	cb      *CircuitBreaker
	limiter *rate.Limiter
}

func newGuard(name string, cfg *Config) *guard {
	if cfg == nil {
		cfg = &Config{}
	}
	g := &guard{
		retry: cfg.Retry,
		cb:    NewCircuitBreaker(name, cfg.Breaker),
	}
	if g.retry == nil {
		g.retry = DefaultRetryConfig()
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

func (g *guard) do(ctx context.Context, fn func() error) error {
	return Retry(ctx, g.retry, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return g.cb.Execute(fn)
	})
}

// ChatProvider 带重试、熔断与限流的 Chat 供应商。
// 流式调用只对建立连接阶段重试，已开始输出的流不会重放。
type ChatProvider struct {
	next llm.ChatProvider
	g    *guard
}

var _ llm.ChatProvider = (*ChatProvider)(nil)

// WrapChat 包装 Chat 供应商。
func WrapChat(p llm.ChatProvider, cfg *Config) *ChatProvider {
	return &ChatProvider{next: p, g: newGuard(p.Name()+"-chat", cfg)}
}

// Name 返回底层供应商名称。
func (r *ChatProvider) Name() string { return r.next.Name() }

// Chat 进行多轮对话。
func (r *ChatProvider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (string, error) {
	var out string
	err := r.g.do(ctx, func() error {
		var err error
		out, err = r.next.Chat(ctx, messages, opts...)
		return err
	})
	return out, err
}

// ChatStream 建立流式对话。
func (r *ChatProvider) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (<-chan llm.StreamChunk, error) {
	var out <-chan llm.StreamChunk
	err := r.g.do(ctx, func() error {
		var err error
		out, err = r.next.ChatStream(ctx, messages, opts...)
		return err
	})
	return out, err
}

// CircuitBreaker 返回熔断器（用于监控）。
func (r *ChatProvider) CircuitBreaker() *CircuitBreaker { return r.g.cb }

// EmbeddingProvider 带重试、熔断与限流的 Embedding 供应商。
type EmbeddingProvider struct {
	next llm.EmbeddingProvider
	g    *guard
}

var _ llm.EmbeddingProvider = (*EmbeddingProvider)(nil)

// WrapEmbedding 包装 Embedding 供应商。
func WrapEmbedding(p llm.EmbeddingProvider, cfg *Config) *EmbeddingProvider {
	return &EmbeddingProvider{next: p, g: newGuard(p.Name()+"-embedding", cfg)}
}

// Name 返回底层供应商名称。
func (r *EmbeddingProvider) Name() string { return r.next.Name() }

// Embed 批量生成向量。
func (r *EmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := r.g.do(ctx, func() error {
		var err error
		out, err = r.next.Embed(ctx, texts)
		return err
	})
	return out, err
}

// EmbedSingle 生成单个向量。
func (r *EmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := r.g.do(ctx, func() error {
		var err error
		out, err = r.next.EmbedSingle(ctx, text)
		return err
	})
	return out, err
}

// CircuitBreaker 返回熔断器（用于监控）。
func (r *EmbeddingProvider) CircuitBreaker() *CircuitBreaker { return r.g.cb }

var statusCodePattern = regexp.MustCompile(`status(?: code)?:? (\d{3})`)

// StatusCode 从错误中提取 HTTP 状态码，无法提取时返回 0。
func StatusCode(err error) int {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	if m := statusCodePattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

// IsRetryableError 判断错误是否可重试：网络错误、408、429 与 5xx。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch code := StatusCode(err); {
	case code == 408, code == 429, code >= 500:
		return true
	case code >= 400:
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "unexpected eof") ||
		strings.Contains(msg, "rate limit")
}
