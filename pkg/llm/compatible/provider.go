// Package compatible 基于 go-openai 客户端提供 OpenAI 兼容协议的供应商：
// Azure OpenAI、通义千问 DashScope 兼容模式以及任意自建的兼容端点。
package compatible

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kart-io/dataagent/pkg/llm"
)

const (
	// ProviderAzure Azure OpenAI。
	ProviderAzure = "azure"
	// ProviderDashScope 阿里云 DashScope 兼容模式。
	ProviderDashScope = "dashscope"
	// ProviderCompatible 通用 OpenAI 兼容端点（vLLM、LocalAI 等）。
	ProviderCompatible = "openai-compatible"

	dashScopeBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
)

func init() {
	llm.RegisterProvider(ProviderAzure, factory(ProviderAzure))
	llm.RegisterProvider(ProviderDashScope, factory(ProviderDashScope))
	llm.RegisterProvider(ProviderCompatible, factory(ProviderCompatible))
}

// Config 兼容供应商配置。
type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	APIVersion  string
	EmbedModel  string
	ChatModel   string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Provider 兼容供应商实现。
type Provider struct {
	config *Config
	client *openai.Client
}

var _ llm.Provider = (*Provider)(nil)

func factory(name string) llm.ProviderFactory {
	return func(configMap map[string]any) (llm.Provider, error) {
		cfg := &Config{
			Name:        name,
			BaseURL:     llm.ConfigString(configMap, "base_url"),
			APIKey:      llm.ConfigString(configMap, "api_key"),
			APIVersion:  llm.ConfigString(configMap, "api_version"),
			EmbedModel:  llm.ConfigString(configMap, "embed_model"),
			ChatModel:   llm.ConfigString(configMap, "chat_model"),
			Temperature: llm.ConfigFloat(configMap, "temperature", 0),
			Timeout:     llm.ConfigDuration(configMap, "timeout", 120*time.Second),
			MaxRetries:  llm.ConfigInt(configMap, "max_retries", 0),
		}
		return New(cfg)
	}
}

// New 根据配置创建供应商。
func New(cfg *Config) (*Provider, error) {
	var clientConfig openai.ClientConfig
	switch cfg.Name {
	case ProviderAzure:
		if cfg.APIKey == "" || cfg.BaseURL == "" {
			return nil, fmt.Errorf("azure: api_key 与 base_url 是必需的")
		}
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientConfig.APIVersion = cfg.APIVersion
		}
		// Azure 以部署名寻址，部署名即配置的模型名
		clientConfig.AzureModelMapperFunc = func(model string) string { return model }
	case ProviderDashScope:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("dashscope: api_key 是必需的")
		}
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = dashScopeBaseURL
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		if cfg.ChatModel == "" {
			cfg.ChatModel = "qwen-plus"
		}
		if cfg.EmbedModel == "" {
			cfg.EmbedModel = "text-embedding-v3"
		}
	default:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%s: base_url 是必需的", cfg.Name)
		}
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Provider{config: cfg, client: openai.NewClientWithConfig(clientConfig)}, nil
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return p.config.Name
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.config.EmbedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings: %w", p.config.Name, err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("%s embeddings: missing vector for input %d", p.config.Name, i)
		}
	}
	return out, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (p *Provider) request(messages []llm.Message, opts []llm.ChatOption) openai.ChatCompletionRequest {
	o := llm.ApplyOptions(opts)
	msgs := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	req := openai.ChatCompletionRequest{
		Model:       p.config.ChatModel,
		Messages:    msgs,
		MaxTokens:   o.MaxTokens,
		Temperature: float32(p.config.Temperature),
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	if o.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return req
}

// Chat 进行多轮对话。
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(messages, opts))
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", p.config.Name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat: empty choices", p.config.Name)
	}
	return resp.Choices[0].Message.Content, nil
}

// ChatStream 进行流式对话。
func (p *Provider) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.ChatOption) (<-chan llm.StreamChunk, error) {
	req := p.request(messages, opts)
	req.Stream = true
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s chat stream: %w", p.config.Name, err)
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			chunk := llm.StreamChunk{}
			if err != nil {
				chunk.Err = fmt.Errorf("%s chat stream: %w", p.config.Name, err)
			} else if len(resp.Choices) > 0 {
				chunk.Content = resp.Choices[0].Delta.Content
			}
			if chunk.Err == nil && chunk.Content == "" {
				continue
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				return
			}
		}
	}()
	return ch, nil
}
