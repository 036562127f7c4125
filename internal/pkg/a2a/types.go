// Package a2a 实现专家与编排器之间的 agent-to-agent 流式调用：
// JSON-RPC 2.0 请求 `message/stream`，以 text/event-stream 返回任务事件。
package a2a

import (
	"fmt"
	"strings"

	"github.com/kart-io/dataagent/pkg/utils/json"
)

// JSON-RPC 方法与协议常量。
const (
	JSONRPCVersion    = "2.0"
	MethodStream      = "message/stream"
	WellKnownCardPath = "/.well-known/agent.json"
)

// 事件类型。
const (
	KindTask           = "task"
	KindMessage        = "message"
	KindArtifactUpdate = "artifact-update"
	KindStatusUpdate   = "status-update"
)

// TaskState 任务状态。
type TaskState string

const (
	TaskSubmitted TaskState = "submitted"
	TaskWorking   TaskState = "working"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
)

// Part 消息片段，目前只有文本。
type Part struct {
	Kind string `json:"kind,omitempty"`
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

// TextPart 构造文本片段。
func TextPart(text string) Part {
	return Part{Kind: "text", Text: text}
}

// Message 对话消息。
type Message struct {
	Kind      string `json:"kind,omitempty"`
	Role      string `json:"role" validate:"required,oneof=user agent"`
	Parts     []Part `json:"parts" validate:"required,min=1"`
	MessageID string `json:"messageId" validate:"required"`
	TaskID    string `json:"taskId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
}

// Text 拼接全部文本片段。
func (m *Message) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "")
}

// MessageSendParams 是 message/stream 的参数。
type MessageSendParams struct {
	Message  Message        `json:"message" validate:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Request JSON-RPC 请求。
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	Params  MessageSendParams `json:"params"`
}

// RPCError JSON-RPC 错误对象。
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("a2a error %d: %s", e.Code, e.Message)
}

// JSON-RPC 错误码。
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Artifact 任务产出。
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name,omitempty"`
	Parts      []Part `json:"parts"`
}

// TaskStatus 任务状态快照。
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Event 是流中的一个结果，Kind 决定其余字段的含义。
type Event struct {
	Kind      string      `json:"kind"`
	ID        string      `json:"id,omitempty"`
	TaskID    string      `json:"taskId,omitempty"`
	ContextID string      `json:"contextId,omitempty"`
	Artifact  *Artifact   `json:"artifact,omitempty"`
	Status    *TaskStatus `json:"status,omitempty"`
	Final     bool        `json:"final,omitempty"`
	Append    bool        `json:"append,omitempty"`
	LastChunk bool        `json:"lastChunk,omitempty"`
}

// Text 返回 artifact-update 事件的首个文本片段。
func (e *Event) Text() string {
	if e.Kind != KindArtifactUpdate || e.Artifact == nil || len(e.Artifact.Parts) == 0 {
		return ""
	}
	return e.Artifact.Parts[0].Text
}

// Response 是 SSE data 行中的 JSON-RPC 响应。
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Result  *Event    `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// Skill 描述智能体的一项能力。
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Capabilities 智能体能力声明。
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentCard 智能体名片，注册中心以 JSON 存储。
type AgentCard struct {
	Name               string       `json:"name" validate:"required"`
	Description        string       `json:"description"`
	URL                string       `json:"url" validate:"required,url"`
	Version            string       `json:"version"`
	Skills             []Skill      `json:"skills"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultInputModes  []string     `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string     `json:"defaultOutputModes,omitempty"`
}

// SearchText 返回用于语义排序的名片文本。
func (c *AgentCard) SearchText() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteString(": ")
	b.WriteString(c.Description)
	for _, s := range c.Skills {
		b.WriteString("\n")
		b.WriteString(s.Name)
		b.WriteString(" ")
		b.WriteString(s.Description)
		if len(s.Tags) > 0 {
			b.WriteString(" ")
			b.WriteString(strings.Join(s.Tags, " "))
		}
		for _, ex := range s.Examples {
			b.WriteString("\n")
			b.WriteString(ex)
		}
	}
	return b.String()
}

// MetaString 读取元数据中的字符串；非字符串值编码为 JSON。
func MetaString(md map[string]any, key string) string {
	switch v := md[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return json.MarshalString(v)
	}
}
