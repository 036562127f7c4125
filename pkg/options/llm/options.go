// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var (
	_ options.IOptions = (*Options)(nil)
	_ options.IOptions = (*ProviderOptions)(nil)
)

// Options 聚合 chat 与 embedding 供应商配置，以及进程级并发闸门。
type Options struct {
	// Chat 对话模型配置。
	Chat *ProviderOptions `json:"chat" mapstructure:"chat"`

	// Embedding 向量模型配置，Provider 为空时禁用。
	Embedding *ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// MaxConcurrent 进程内同时进行的 LLM 调用上限。
	MaxConcurrent int `json:"max-concurrent" mapstructure:"max-concurrent"`

	// RateLimit 每秒请求数上限，0 表示不限。
	RateLimit float64 `json:"rate-limit" mapstructure:"rate-limit"`

	// EmbeddingCacheTTL embedding 缓存过期时间，0 表示不缓存。
	EmbeddingCacheTTL time.Duration `json:"embedding-cache-ttl" mapstructure:"embedding-cache-ttl"`
}

// NewOptions 创建默认 LLM 配置。
func NewOptions() *Options {
	embedding := NewProviderOptions()
	embedding.Model = "nomic-embed-text"

	chat := NewProviderOptions()
	chat.Model = "deepseek-r1:7b"

	return &Options{
		Chat:              chat,
		Embedding:         embedding,
		MaxConcurrent:     10,
		EmbeddingCacheTTL: 24 * time.Hour,
	}
}

// AddFlags adds flags for LLM options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.MaxConcurrent, p+"llm.max-concurrent", o.MaxConcurrent, "Maximum concurrent LLM calls per process.")
	fs.Float64Var(&o.RateLimit, p+"llm.rate-limit", o.RateLimit, "Maximum LLM requests per second, 0 disables limiting.")
	fs.DurationVar(&o.EmbeddingCacheTTL, p+"llm.embedding-cache-ttl", o.EmbeddingCacheTTL, "TTL of cached embeddings, 0 disables the cache.")
	o.Chat.AddFlags(fs, append(prefixes, "llm", "chat")...)
	o.Embedding.AddFlags(fs, append(prefixes, "llm", "embedding")...)
}

// Validate validates the LLM options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("llm.max-concurrent must be positive"))
	}
	if o.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("llm.rate-limit must not be negative"))
	}
	for _, err := range o.Chat.Validate() {
		errs = append(errs, fmt.Errorf("llm.chat: %w", err))
	}
	if o.Embedding != nil && o.Embedding.Provider != "" {
		for _, err := range o.Embedding.Validate() {
			errs = append(errs, fmt.Errorf("llm.embedding: %w", err))
		}
	}
	return errs
}

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（ollama, openai, azure, dashscope, openai-compatible）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// APIKey API 密钥。
	APIKey string `json:"-" mapstructure:"api-key"`

	// Model 使用的模型名称，azure 下为 deployment 名称。
	Model string `json:"model" mapstructure:"model"`

	// APIVersion azure API 版本。
	APIVersion string `json:"api-version" mapstructure:"api-version"`

	// Temperature 默认采样温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// Organization 组织 ID（OpenAI 可选）。
	Organization string `json:"organization" mapstructure:"organization"`
}

// NewProviderOptions 创建默认 LLM 供应商配置。
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:    "ollama",
		BaseURL:     "http://localhost:11434",
		Temperature: 0.1,
		Timeout:     300 * time.Second,
		MaxRetries:  3,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":     o.BaseURL,
		"api_key":      o.APIKey,
		"embed_model":  o.Model,
		"chat_model":   o.Model,
		"api_version":  o.APIVersion,
		"temperature":  o.Temperature,
		"timeout":      o.Timeout,
		"max_retries":  o.MaxRetries,
		"organization": o.Organization,
	}
}

// AddFlags adds flags for a provider. Flag names are built from prefixes,
// e.g. prefixes "llm", "chat" yields "llm.chat.provider".
func (o *ProviderOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Provider, p+"provider", o.Provider, "LLM provider (ollama, openai, azure, dashscope, openai-compatible).")
	fs.StringVar(&o.BaseURL, p+"base-url", o.BaseURL, "LLM API base URL.")
	fs.StringVar(&o.APIKey, p+"api-key", o.APIKey, "LLM API key.")
	fs.StringVar(&o.Model, p+"model", o.Model, "LLM model name.")
	fs.StringVar(&o.APIVersion, p+"api-version", o.APIVersion, "API version (azure only).")
	fs.Float64Var(&o.Temperature, p+"temperature", o.Temperature, "Default sampling temperature.")
	fs.DurationVar(&o.Timeout, p+"timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, p+"max-retries", o.MaxRetries, "LLM maximum number of retries.")
	fs.StringVar(&o.Organization, p+"organization", o.Organization, "LLM organization ID (optional).")
}

// Validate validates the LLM provider options.
func (o *ProviderOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Provider == "" {
		errs = append(errs, fmt.Errorf("provider is required"))
	}
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	switch o.Provider {
	case "openai", "azure", "dashscope":
		if o.APIKey == "" {
			errs = append(errs, fmt.Errorf("api-key is required for %s provider", o.Provider))
		}
	}
	if o.Provider == "azure" && o.BaseURL == "" {
		errs = append(errs, fmt.Errorf("base-url is required for azure provider"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}
