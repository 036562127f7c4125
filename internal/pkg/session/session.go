// Package session 提供对话记忆与历史记录两个门面。
// 记忆由检索后端负责事实抽取与去重，历史记录是逐字的对话日志。
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/dataagent/internal/pkg/retrieval"
)

// Message 对话消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Scope 标识一段会话，空字段表示不限定。
type Scope struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
	RunID   string `json:"run_id"`
}

// MemoryEvent 是写入记忆后后端返回的变更。
type MemoryEvent struct {
	ID     string `json:"id"`
	Memory string `json:"memory"`
	Event  string `json:"event"`
}

// HistoryRecord 一次追加的对话记录。
type HistoryRecord struct {
	HID       string    `json:"hid"`
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	RunID     string    `json:"run_id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Memory 记忆门面。
type Memory interface {
	Add(ctx context.Context, scope Scope, messages []Message, metadata map[string]any) ([]MemoryEvent, error)
	Search(ctx context.Context, query string, scope Scope, limit int) ([]retrieval.MemoryItem, error)
	DeleteByScope(ctx context.Context, scope Scope) error
}

// History 历史记录门面，Lookup 按 created_at 升序返回。
type History interface {
	Append(ctx context.Context, scope Scope, messages []Message) (string, error)
	Lookup(ctx context.Context, scope Scope, limit int) ([]HistoryRecord, error)
}

// MemoryText 将记忆拼接为提示词片段。
func MemoryText(items []retrieval.MemoryItem) string {
	lines := make([]string, 0, len(items))
	for _, m := range items {
		if m.Memory != "" {
			lines = append(lines, m.Memory)
		}
	}
	return strings.Join(lines, "\n")
}

// HistoryText 将历史记录渲染为 "role: content" 行。
func HistoryText(records []HistoryRecord) string {
	var b strings.Builder
	for _, r := range records {
		for _, m := range r.Messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
