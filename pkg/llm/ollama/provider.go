// Package ollama 提供 Ollama LLM 供应商实现。
package ollama

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/dataagent/pkg/llm"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

const ProviderName = "ollama"

func init() {
	llm.RegisterProvider(ProviderName, NewProvider)
}

// Config Ollama 供应商配置。
type Config struct {
	BaseURL     string        `json:"base_url" mapstructure:"base_url"`
	EmbedModel  string        `json:"embed_model" mapstructure:"embed_model"`
	ChatModel   string        `json:"chat_model" mapstructure:"chat_model"`
	Timeout     time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `json:"max_retries" mapstructure:"max_retries"`
	Temperature float64       `json:"temperature" mapstructure:"temperature"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
		ChatModel:  "deepseek-r1:7b",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider Ollama 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 从配置 map 创建 Ollama 供应商。
func NewProvider(configMap map[string]any) (llm.Provider, error) {
	cfg := DefaultConfig()

	if v := llm.ConfigString(configMap, "base_url"); v != "" {
		cfg.BaseURL = v
	}
	if v := llm.ConfigString(configMap, "embed_model"); v != "" {
		cfg.EmbedModel = v
	}
	if v := llm.ConfigString(configMap, "chat_model"); v != "" {
		cfg.ChatModel = v
	}
	cfg.Timeout = llm.ConfigDuration(configMap, "timeout", cfg.Timeout)
	cfg.MaxRetries = llm.ConfigInt(configMap, "max_retries", cfg.MaxRetries)
	cfg.Temperature = llm.ConfigFloat(configMap, "temperature", 0)

	return NewProviderWithConfig(cfg), nil
}

// NewProviderWithConfig 使用结构化配置创建 Ollama 供应商。
func NewProviderWithConfig(cfg *Config) *Provider {
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(&httpclient.Config{
			BaseURL:          cfg.BaseURL,
			Timeout:          cfg.Timeout,
			RetryCount:       cfg.MaxRetries,
			RetryWaitTime:    time.Second,
			RetryMaxWaitTime: 10 * time.Second,
		}),
	}
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	if err := p.client.PostJSON(ctx, "/api/embed", embedRequest{Model: p.config.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: expected %d vectors, got %d", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
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
	Model    string         `json:"model"`
	Messages []llm.Message  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message llm.Message `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

func (p *Provider) buildRequest(messages []llm.Message, stream bool, opts []llm.ChatOption) chatRequest {
	o := llm.ApplyOptions(opts)
	req := chatRequest{
		Model:    p.config.ChatModel,
		Messages: messages,
		Stream:   stream,
	}
	options := map[string]any{}
	switch {
	case o.Temperature != nil:
		options["temperature"] = *o.Temperature
	case p.config.Temperature > 0:
		options["temperature"] = p.config.Temperature
	}
	if o.MaxTokens > 0 {
		options["num_predict"] = o.MaxTokens
	}
	if len(options) > 0 {
		req.Options = options
	}
	if o.JSONMode {
		req.Format = "json"
	}
	return req
}

// Chat 进行多轮对话。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (string, error) {
	var resp chatResponse
	if err := p.client.PostJSON(ctx, "/api/chat", p.buildRequest(messages, false, opts), &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", resp.Error)
	}
	return resp.Message.Content, nil
}

// ChatStream 进行流式对话，Ollama 以换行分隔的 JSON 返回片段。
func (p *Provider) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (<-chan llm.StreamChunk, error) {
	body, err := p.client.Stream(ctx, "/api/chat", p.buildRequest(messages, true, opts), nil)
	if err != nil {
		return nil, fmt.Errorf("ollama chat stream: %w", err)
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(c llm.StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk chatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				send(llm.StreamChunk{Err: fmt.Errorf("ollama chat stream: decode: %w", err)})
				return
			}
			if chunk.Error != "" {
				send(llm.StreamChunk{Err: fmt.Errorf("ollama chat stream: %s", chunk.Error)})
				return
			}
			if chunk.Message.Content != "" && !send(llm.StreamChunk{Content: chunk.Message.Content}) {
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(llm.StreamChunk{Err: fmt.Errorf("ollama chat stream: %w", err)})
		}
	}()
	return ch, nil
}

// Ping 检查 Ollama 服务是否可用。
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.DoJSON(ctx, http.MethodGet, "/api/tags", nil, nil)
}

// ListModels 列出可用模型。
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := p.client.DoJSON(ctx, http.MethodGet, "/api/tags", nil, &result); err != nil {
		return nil, err
	}
	models := make([]string, len(result.Models))
	for i, m := range result.Models {
		models[i] = m.Name
	}
	return models, nil
}
