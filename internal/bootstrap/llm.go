package bootstrap

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/llm"
	"github.com/kart-io/dataagent/pkg/llm/resilience"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"

	// 注册 LLM 供应商
	_ "github.com/kart-io/dataagent/pkg/llm/compatible"
	_ "github.com/kart-io/dataagent/pkg/llm/ollama"
	_ "github.com/kart-io/dataagent/pkg/llm/openai"
)

// LLMName LLM 初始化器名称。
const LLMName = "llm"

// LLMInitializer 创建 chat 与 embedding 供应商。
//
// 调用链：embedding 缓存 → 并发闸门 → 重试/熔断/限流 → 供应商。
// 缓存命中不占用闸门名额。
type LLMInitializer struct {
	opts    *llmopts.Options
	metrics *metrics.Metrics
	redis   *RedisInitializer

	gate      *llm.Gate
	chat      llm.ChatProvider
	embedding llm.EmbeddingProvider
}

// NewLLMInitializer creates a new LLMInitializer. redis may be nil, in which
// case embeddings are not cached.
func NewLLMInitializer(opts *llmopts.Options, m *metrics.Metrics, redis *RedisInitializer) *LLMInitializer {
	return &LLMInitializer{opts: opts, metrics: m, redis: redis}
}

func (li *LLMInitializer) Name() string { return LLMName }

func (li *LLMInitializer) Dependencies() []string {
	if li.redis != nil {
		return []string{LoggingName, RedisName}
	}
	return []string{LoggingName}
}

func (li *LLMInitializer) Initialize(_ context.Context) error {
	li.gate = llm.NewGate(li.opts.MaxConcurrent, li.metrics)
	guard := &resilience.Config{
		Retry:     resilience.DefaultRetryConfig(),
		Breaker:   resilience.DefaultCircuitBreakerConfig(),
		RateLimit: li.opts.RateLimit,
	}

	chat, err := llm.NewChatProvider(li.opts.Chat.Provider, li.opts.Chat.ToConfigMap())
	if err != nil {
		return fmt.Errorf("create chat provider %q: %w", li.opts.Chat.Provider, err)
	}
	li.chat = li.gate.WrapChat(resilience.WrapChat(chat, guard))
	logger.Infow("Chat provider ready", "provider", li.opts.Chat.Provider, "model", li.opts.Chat.Model,
		"max_concurrent", li.gate.Size())

	if li.opts.Embedding == nil || li.opts.Embedding.Provider == "" {
		return nil
	}
	emb, err := llm.NewEmbeddingProvider(li.opts.Embedding.Provider, li.opts.Embedding.ToConfigMap())
	if err != nil {
		return fmt.Errorf("create embedding provider %q: %w", li.opts.Embedding.Provider, err)
	}
	li.embedding = li.gate.WrapEmbedding(resilience.WrapEmbedding(emb, guard))

	if li.redis != nil && li.redis.Client() != nil && li.opts.EmbeddingCacheTTL > 0 {
		cfg := llm.DefaultEmbeddingCacheConfig()
		cfg.TTL = li.opts.EmbeddingCacheTTL
		li.embedding = llm.NewCachedEmbeddingProvider(li.embedding, li.redis.Client(), cfg)
	}
	logger.Infow("Embedding provider ready", "provider", li.opts.Embedding.Provider, "model", li.opts.Embedding.Model)
	return nil
}

// Chat 返回包装后的 chat 供应商。
func (li *LLMInitializer) Chat() llm.ChatProvider { return li.chat }

// Embedding 返回包装后的 embedding 供应商，未配置时为 nil。
func (li *LLMInitializer) Embedding() llm.EmbeddingProvider { return li.embedding }

// Gate 返回进程级并发闸门。
func (li *LLMInitializer) Gate() *llm.Gate { return li.gate }
