package session

import (
	"context"
	"sort"
	"time"

	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// MemoryClient 通过 data-services 的 /memories 接口读写记忆。
type MemoryClient struct {
	client *httpclient.Client
}

var _ Memory = (*MemoryClient)(nil)

// NewMemoryClient 创建记忆客户端。
func NewMemoryClient(client *httpclient.Client) *MemoryClient {
	return &MemoryClient{client: client}
}

type addMemoryRequest struct {
	Scope
	Messages []Message      `json:"messages"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type addMemoryResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Results []MemoryEvent `json:"results"`
	} `json:"data"`
}

// Add 写入一段对话，返回后端抽取出的记忆变更。
func (m *MemoryClient) Add(ctx context.Context, scope Scope, messages []Message, metadata map[string]any) ([]MemoryEvent, error) {
	var resp addMemoryResponse
	req := addMemoryRequest{Scope: scope, Messages: messages, Metadata: metadata}
	if err := m.client.PostJSON(ctx, "/memories", req, &resp); err != nil {
		return nil, errors.ErrUnavailable.WithCause(err).WithMessage("store memory")
	}
	return resp.Data.Results, nil
}

type searchMemoryRequest struct {
	Query string `json:"query"`
	Scope
	Limit int `json:"limit"`
}

type searchMemoryResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
	Data   struct {
		Results json.RawMessage `json:"results"`
	} `json:"data"`
}

// Search 检索与 query 相关的记忆。
func (m *MemoryClient) Search(ctx context.Context, query string, scope Scope, limit int) ([]retrieval.MemoryItem, error) {
	var resp searchMemoryResponse
	req := searchMemoryRequest{Query: query, Scope: scope, Limit: limit}
	if err := m.client.PostJSON(ctx, "/memories/search", req, &resp); err != nil {
		return nil, errors.ErrUnavailable.WithCause(err).WithMessage("search memories")
	}
	return decodeMemoryResults(resp.Data.Results)
}

// decodeMemoryResults 兼容 results 为数组或 {"results": [...]} 两种形态。
func decodeMemoryResults(raw json.RawMessage) ([]retrieval.MemoryItem, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var items []retrieval.MemoryItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var nested struct {
		Results []retrieval.MemoryItem `json:"results"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, errors.ErrParseFailure.WithCause(err).WithMessage("decode memory results")
	}
	return nested.Results, nil
}

// DeleteByScope 删除 scope 下的全部记忆。
func (m *MemoryClient) DeleteByScope(ctx context.Context, scope Scope) error {
	if scope == (Scope{}) {
		return errors.ErrInvalidParam.WithMessage("at least one of user_id, agent_id, run_id is required")
	}
	if err := m.client.PostJSON(ctx, "/memories/delete", scope, nil); err != nil {
		return errors.ErrUnavailable.WithCause(err).WithMessage("delete memories")
	}
	return nil
}

// HistoryClient 通过 data-services 的 /history 接口读写历史记录。
type HistoryClient struct {
	client *httpclient.Client
}

var _ History = (*HistoryClient)(nil)

// NewHistoryClient 创建历史记录客户端。
func NewHistoryClient(client *httpclient.Client) *HistoryClient {
	return &HistoryClient{client: client}
}

type createHistoryRequest struct {
	Scope
	Messages []Message `json:"messages"`
}

type createHistoryResponse struct {
	Status  string `json:"status"`
	HID     string `json:"hid"`
	Message string `json:"message"`
}

// Append 追加一段对话，返回记录 ID。
func (h *HistoryClient) Append(ctx context.Context, scope Scope, messages []Message) (string, error) {
	var resp createHistoryResponse
	if err := h.client.PostJSON(ctx, "/history/create", createHistoryRequest{Scope: scope, Messages: messages}, &resp); err != nil {
		return "", errors.ErrUnavailable.WithCause(err).WithMessage("create history")
	}
	return resp.HID, nil
}

type searchHistoryRequest struct {
	Scope
	Limit int `json:"limit,omitempty"`
}

type historyWire struct {
	HID       string    `json:"hid"`
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	RunID     string    `json:"run_id"`
	Messages  []Message `json:"messages"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type searchHistoryResponse struct {
	Status  string        `json:"status"`
	Data    []historyWire `json:"data"`
	Total   int           `json:"total"`
	Message string        `json:"message"`
}

// 后端可能返回不带时区的时间
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999"}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Lookup 查询 scope 下最近的 limit 条记录，按创建时间升序返回。
func (h *HistoryClient) Lookup(ctx context.Context, scope Scope, limit int) ([]HistoryRecord, error) {
	var resp searchHistoryResponse
	if err := h.client.PostJSON(ctx, "/history/search", searchHistoryRequest{Scope: scope, Limit: limit}, &resp); err != nil {
		return nil, errors.ErrUnavailable.WithCause(err).WithMessage("search history")
	}
	records := make([]HistoryRecord, len(resp.Data))
	for i, w := range resp.Data {
		records[i] = HistoryRecord{
			HID:       w.HID,
			UserID:    w.UserID,
			AgentID:   w.AgentID,
			RunID:     w.RunID,
			Messages:  w.Messages,
			CreatedAt: parseTime(w.CreatedAt),
			UpdatedAt: parseTime(w.UpdatedAt),
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
