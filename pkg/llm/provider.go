// Package llm 提供统一的 LLM 供应商抽象层。
// 支持 Embedding 和 Chat 使用不同供应商的模型，供应商按名称在启动时选择。
package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// ChatProvider 定义 Chat 供应商接口。
type ChatProvider interface {
	// Chat 进行多轮对话，返回完整回复。
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error)

	// ChatStream 进行多轮对话，逐片段返回回复。
	// 返回的 channel 在回复结束或出错后关闭，错误通过最后一个 StreamChunk.Err 传递。
	ChatStream(ctx context.Context, messages []Message, opts ...ChatOption) (<-chan StreamChunk, error)

	// Name 返回供应商名称。
	Name() string
}

// Provider 同时支持 Embedding 和 Chat 的完整供应商。
type Provider interface {
	EmbeddingProvider
	ChatProvider
}

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StreamChunk 流式回复片段。
type StreamChunk struct {
	Content string
	Err     error
}

// ChatOptions 单次调用参数。
type ChatOptions struct {
	Temperature *float32
	MaxTokens   int
	// JSONMode 要求供应商以 JSON 对象输出（供应商不支持时忽略）。
	JSONMode bool
}

// ChatOption 修改 ChatOptions。
type ChatOption func(*ChatOptions)

// WithTemperature 设置温度。
func WithTemperature(t float32) ChatOption {
	return func(o *ChatOptions) { o.Temperature = &t }
}

// WithMaxTokens 设置最大生成 token 数。
func WithMaxTokens(n int) ChatOption {
	return func(o *ChatOptions) { o.MaxTokens = n }
}

// WithJSONMode 要求 JSON 输出。
func WithJSONMode() ChatOption {
	return func(o *ChatOptions) { o.JSONMode = true }
}

// ApplyOptions 合并调用参数。
func ApplyOptions(opts []ChatOption) ChatOptions {
	var o ChatOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Generate 单轮生成：systemPrompt 可为空。
func Generate(ctx context.Context, p ChatProvider, prompt, systemPrompt string, opts ...ChatOption) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: prompt})
	return p.Chat(ctx, messages, opts...)
}

// Collect 读取完整的流式回复。
func Collect(ch <-chan StreamChunk) (string, error) {
	var b strings.Builder
	for c := range ch {
		if c.Err != nil {
			return b.String(), c.Err
		}
		b.WriteString(c.Content)
	}
	return b.String(), nil
}

// SingleChunkStream 将一次性回复包装为流，供不支持流式的实现复用。
func SingleChunkStream(content string, err error) <-chan StreamChunk {
	ch := make(chan StreamChunk, 1)
	if err != nil {
		ch <- StreamChunk{Err: err}
	} else {
		ch <- StreamChunk{Content: content}
	}
	close(ch)
	return ch
}

// ProviderFactory 供应商工厂函数类型。
type ProviderFactory func(config map[string]any) (Provider, error)

// registry 供应商注册表，由各供应商包的 init 填充。
var registry = &providerRegistry{
	providers: make(map[string]ProviderFactory),
}

type providerRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// RegisterProvider 注册供应商工厂。
func RegisterProvider(name string, factory ProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.providers[name] = factory
}

// NewProvider 根据名称创建供应商实例。
func NewProvider(name string, config map[string]any) (Provider, error) {
	registry.mu.RLock()
	factory, ok := registry.providers[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider: %s (registered: %s)", name, strings.Join(ListProviders(), ", "))
	}
	return factory(config)
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	return NewProvider(name, config)
}

// NewChatProvider 根据名称创建 Chat 供应商实例。
func NewChatProvider(name string, config map[string]any) (ChatProvider, error) {
	return NewProvider(name, config)
}

// ListProviders 列出所有已注册的供应商名称（有序）。
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigString 读取配置项字符串。
func ConfigString(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

// ConfigDuration 读取配置项时长，缺省返回 def。
func ConfigDuration(config map[string]any, key string, def time.Duration) time.Duration {
	switch v := config[key].(type) {
	case time.Duration:
		if v > 0 {
			return v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// ConfigInt 读取配置项整数，缺省返回 def。
func ConfigInt(config map[string]any, key string, def int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// ConfigFloat 读取配置项浮点数，缺省返回 def。
func ConfigFloat(config map[string]any, key string, def float64) float64 {
	switch v := config[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}
