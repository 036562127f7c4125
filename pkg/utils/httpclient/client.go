// Package httpclient 提供带重试与链路追踪透传的 HTTP 客户端。
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/kart-io/dataagent/pkg/utils/json"
)

// Config HTTP 客户端配置。
type Config struct {
	// BaseURL 基础地址，请求路径会拼接在其后
	BaseURL string
	// Timeout 单次请求超时
	Timeout time.Duration
	// RetryCount 失败重试次数（网络错误或 5xx）
	RetryCount int
	// RetryWaitTime 首次重试等待时间
	RetryWaitTime time.Duration
	// RetryMaxWaitTime 最大重试等待时间
	RetryMaxWaitTime time.Duration
	// Headers 默认请求头
	Headers map[string]string
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		Timeout:          300 * time.Second,
		RetryCount:       2,
		RetryWaitTime:    500 * time.Millisecond,
		RetryMaxWaitTime: 5 * time.Second,
		Headers:          map[string]string{},
	}
}

// StatusError is returned when the server answers with a status >= 400.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client 封装 resty.Client。
type Client struct {
	resty  *resty.Client
	config *Config
}

// NewClient 创建 HTTP 客户端，config 为 nil 时使用默认配置。
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	r := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(config.RetryCount).
		SetRetryWaitTime(config.RetryWaitTime).
		SetRetryMaxWaitTime(config.RetryMaxWaitTime).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
		}).
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			// 自动注入 W3C Trace Context 头
			otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))
			return nil
		})

	if config.BaseURL != "" {
		r.SetBaseURL(strings.TrimRight(config.BaseURL, "/"))
	}
	for k, v := range config.Headers {
		r.SetHeader(k, v)
	}

	return &Client{resty: r, config: config}
}

// Resty 返回底层 resty 客户端。
func (c *Client) Resty() *resty.Client {
	return c.resty
}

// BaseURL 返回配置的基础地址。
func (c *Client) BaseURL() string {
	return c.resty.BaseURL
}

// R 创建绑定 ctx 的请求。
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.resty.R().SetContext(ctx)
}

// DoJSON 发送 JSON 请求并将响应解码到 out（out 可为 nil）。
// 状态码 >= 400 时返回 *StatusError。
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	req := c.R(ctx).SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return &StatusError{StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 512)}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// PostJSON is DoJSON with POST.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, body, out)
}

// Stream 发送 POST 请求并返回未解析的响应体，调用方负责关闭。
// 流式请求不做重试，已经输出的片段无法回放。
func (c *Client) Stream(ctx context.Context, path string, body any, headers map[string]string) (io.ReadCloser, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = c.resty.BaseURL + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range c.resty.Header {
		if len(v) > 0 {
			req.Header.Set(k, v[0])
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	// 流式响应不受整体超时约束，生命周期由 ctx 控制
	hc := *c.resty.GetClient()
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", url, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp.Body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
