// Package openai 提供 OpenAI REST API 供应商实现，支持流式对话。
//
//	import _ "github.com/kart-io/dataagent/pkg/llm/openai"
//
//	provider, err := llm.NewProvider("openai", map[string]any{"api_key": "sk-..."})
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/dataagent/pkg/llm"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// ProviderName 是 OpenAI 供应商的名称标识符
const ProviderName = "openai"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config OpenAI 供应商配置。
type Config struct {
	// BaseURL API 基础地址。
	BaseURL string
	// APIKey API 密钥。
	APIKey string
	// EmbedModel 用于生成嵌入的模型。
	EmbedModel string
	// ChatModel 用于对话的模型。
	ChatModel string
	// Timeout 请求超时时间。
	Timeout time.Duration
	// MaxRetries 最大重试次数。
	MaxRetries int
	// Organization 组织 ID（可选）。
	Organization string
	// Temperature 默认温度，调用方可用 llm.WithTemperature 覆盖。
	Temperature float64
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		EmbedModel: "text-embedding-3-small",
		ChatModel:  "gpt-4o-mini",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider OpenAI 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 从配置 map 创建 OpenAI 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()
	if v := llm.ConfigString(configMap, "base_url"); v != "" {
		cfg.BaseURL = v
	}
	cfg.APIKey = llm.ConfigString(configMap, "api_key")
	if v := llm.ConfigString(configMap, "embed_model"); v != "" {
		cfg.EmbedModel = v
	}
	if v := llm.ConfigString(configMap, "chat_model"); v != "" {
		cfg.ChatModel = v
	}
	cfg.Timeout = llm.ConfigDuration(configMap, "timeout", cfg.Timeout)
	cfg.MaxRetries = llm.ConfigInt(configMap, "max_retries", cfg.MaxRetries)
	cfg.Organization = llm.ConfigString(configMap, "organization")
	cfg.Temperature = llm.ConfigFloat(configMap, "temperature", 0)

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api_key 是必需的")
	}
	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 OpenAI 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	if cfg.Organization != "" {
		headers["OpenAI-Organization"] = cfg.Organization
	}
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(&httpclient.Config{
			BaseURL:          cfg.BaseURL,
			Timeout:          cfg.Timeout,
			RetryCount:       cfg.MaxRetries,
			RetryWaitTime:    500 * time.Millisecond,
			RetryMaxWaitTime: 5 * time.Second,
			Headers:          headers,
		}),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	if err := p.client.PostJSON(ctx, "/embeddings", embeddingRequest{Model: p.config.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	// 按 index 回填确保顺序正确
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(embeddings) {
			embeddings[d.Index] = d.Embedding
		}
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, fmt.Errorf("openai embeddings: missing vector for input %d", i)
		}
	}
	return embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []llm.Message   `json:"messages"`
	Stream         bool            `json:"stream"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    *float32        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message llm.Message `json:"message"`
		Delta   llm.Message `json:"delta"`
	} `json:"choices"`
}

func (p *Provider) buildRequest(messages []llm.Message, stream bool, opts []llm.ChatOption) chatRequest {
	o := llm.ApplyOptions(opts)
	req := chatRequest{
		Model:     p.config.ChatModel,
		Messages:  messages,
		Stream:    stream,
		MaxTokens: o.MaxTokens,
	}
	switch {
	case o.Temperature != nil:
		req.Temperature = o.Temperature
	case p.config.Temperature > 0:
		t := float32(p.config.Temperature)
		req.Temperature = &t
	}
	if o.JSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

// Chat 进行多轮对话。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (string, error) {
	var resp chatResponse
	if err := p.client.PostJSON(ctx, "/chat/completions", p.buildRequest(messages, false, opts), &resp); err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: 未返回响应内容")
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream 以 SSE 方式进行多轮对话。
func (p *Provider) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (<-chan llm.StreamChunk, error) {
	body, err := p.client.Stream(ctx, "/chat/completions", p.buildRequest(messages, true, opts), nil)
	if err != nil {
		return nil, fmt.Errorf("openai chat stream: %w", err)
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer body.Close()

		err := httpclient.ReadSSE(body, func(ev httpclient.Event) error {
			if strings.TrimSpace(ev.Data) == "[DONE]" {
				return io.EOF
			}
			var chunk chatResponse
			if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
				return fmt.Errorf("decode stream chunk: %w", err)
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				return nil
			}
			select {
			case ch <- llm.StreamChunk{Content: chunk.Choices[0].Delta.Content}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			select {
			case ch <- llm.StreamChunk{Err: fmt.Errorf("openai chat stream: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

// ListModels 列出可用模型。
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := p.client.DoJSON(ctx, http.MethodGet, "/models", nil, &result); err != nil {
		return nil, err
	}
	models := make([]string, len(result.Data))
	for i, m := range result.Data {
		models[i] = m.ID
	}
	return models, nil
}
