package a2a

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kart-io/dataagent/pkg/utils/httpclient"
	"github.com/kart-io/dataagent/pkg/utils/id"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// Client 调用远端智能体的 message/stream。
type Client struct {
	hc *httpclient.Client
}

// NewClient 创建客户端，hc 为 nil 时使用默认配置。
func NewClient(hc *httpclient.Client) *Client {
	if hc == nil {
		hc = httpclient.NewClient(nil)
	}
	return &Client{hc: hc}
}

// NewRequest 构造一条用户消息的流式请求。
func NewRequest(query string, metadata map[string]any) *Request {
	return &Request{
		JSONRPC: JSONRPCVersion,
		ID:      id.NewHex(),
		Method:  MethodStream,
		Params: MessageSendParams{
			Message: Message{
				Kind:      KindMessage,
				Role:      "user",
				Parts:     []Part{{Kind: "text", Type: "text", Text: query}},
				MessageID: id.NewHex(),
			},
			Metadata: metadata,
		},
	}
}

// Stream 向 url 发送 query，每个非空文本产出回调一次 fn。
// 远端以 failed 结束任务时返回 *RPCError；fn 返回错误时中止读取并返回该错误。
func (c *Client) Stream(ctx context.Context, url, query string, metadata map[string]any, fn func(text string) error) error {
	body, err := c.hc.Stream(ctx, url, NewRequest(query, metadata), nil)
	if err != nil {
		return err
	}
	defer body.Close()

	var failure error
	err = httpclient.ReadSSE(body, func(ev httpclient.Event) error {
		if strings.TrimSpace(ev.Data) == "" {
			return nil
		}
		var resp Response
		if err := json.Unmarshal([]byte(ev.Data), &resp); err != nil {
			return fmt.Errorf("decode a2a event: %w", err)
		}
		if resp.Error != nil {
			return resp.Error
		}
		if resp.Result == nil {
			return nil
		}

		switch resp.Result.Kind {
		case KindArtifactUpdate:
			if text := resp.Result.Text(); text != "" {
				return fn(text)
			}
		case KindStatusUpdate:
			if resp.Result.Status != nil && resp.Result.Status.State == TaskFailed {
				msg := "task failed"
				if m := resp.Result.Status.Message; m != nil && m.Text() != "" {
					msg = m.Text()
				}
				failure = &RPCError{Code: CodeInternalError, Message: msg}
			}
			if resp.Result.Final {
				return io.EOF
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return failure
}

// Card 获取 baseURL 上公开的名片。
func (c *Client) Card(ctx context.Context, baseURL string) (*AgentCard, error) {
	var card AgentCard
	url := strings.TrimRight(baseURL, "/") + WellKnownCardPath
	if err := c.hc.DoJSON(ctx, http.MethodGet, url, nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}
