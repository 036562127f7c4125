package a2a

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/pkg/utils/id"
	"github.com/kart-io/dataagent/pkg/utils/json"
	"github.com/kart-io/dataagent/pkg/validator"
)

// Stream 将任务事件以 SSE 写回调用方，可并发使用。
type Stream struct {
	mu        sync.Mutex
	w         http.ResponseWriter
	flusher   http.Flusher
	requestID string
	taskID    string
	contextID string
	name      string
	closed    bool
}

// NewStream 写入 SSE 响应头并返回流。artifactName 作为每个产出的名称。
func NewStream(w http.ResponseWriter, requestID, artifactName string) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	return &Stream{
		w:         w,
		flusher:   flusher,
		requestID: requestID,
		taskID:    id.NewHex(),
		contextID: id.NewHex(),
		name:      artifactName,
	}, nil
}

// TaskID 返回本次流对应的任务 ID。
func (s *Stream) TaskID() string { return s.taskID }

func (s *Stream) write(resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Stream) event(ev *Event) error {
	ev.TaskID = s.taskID
	ev.ContextID = s.contextID
	err := s.write(&Response{JSONRPC: JSONRPCVersion, ID: s.requestID, Result: ev})
	if ev.Final {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
	return err
}

// Submitted 写入初始任务事件。
func (s *Stream) Submitted() error {
	return s.event(&Event{
		Kind:   KindTask,
		ID:     s.taskID,
		Status: &TaskStatus{State: TaskSubmitted, Timestamp: time.Now().UTC().Format(time.RFC3339)},
	})
}

// Artifact 写入一个文本产出片段。
func (s *Stream) Artifact(text string) error {
	return s.event(&Event{
		Kind: KindArtifactUpdate,
		Artifact: &Artifact{
			ArtifactID: id.NewHex(),
			Name:       s.name,
			Parts:      []Part{TextPart(text)},
		},
	})
}

// Status 写入状态事件，final 为 true 时流随之关闭。
func (s *Stream) Status(state TaskState, text string, final bool) error {
	st := &TaskStatus{State: state, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if text != "" {
		st.Message = &Message{Kind: KindMessage, Role: "agent", Parts: []Part{TextPart(text)}, MessageID: id.NewHex()}
	}
	return s.event(&Event{Kind: KindStatusUpdate, Status: st, Final: final})
}

// Complete 以 completed 结束任务。
func (s *Stream) Complete(text string) error {
	return s.Status(TaskCompleted, text, true)
}

// Fail 以 failed 结束任务。
func (s *Stream) Fail(err error) error {
	return s.Status(TaskFailed, err.Error(), true)
}

// Closed 报告流是否已写入终止事件。
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// RequestContext 是一次 message/stream 调用的输入。
type RequestContext struct {
	Query    string
	Message  Message
	Metadata map[string]any
}

// Executor 处理一次流式调用。Execute 返回前未结束的流由 Handler 补写终止事件。
type Executor interface {
	Execute(ctx context.Context, req *RequestContext, stream *Stream) error
}

// Handler 返回处理 message/stream 的 gin 处理函数。
func Handler(artifactName string, exec Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, &Response{
				JSONRPC: JSONRPCVersion,
				Error:   &RPCError{Code: CodeParseError, Message: err.Error()},
			})
			return
		}
		if req.Method != MethodStream {
			c.JSON(http.StatusBadRequest, &Response{
				JSONRPC: JSONRPCVersion, ID: req.ID,
				Error: &RPCError{Code: CodeMethodNotFound, Message: "unsupported method " + req.Method},
			})
			return
		}
		if err := validator.Struct(&req.Params); err != nil {
			c.JSON(http.StatusBadRequest, &Response{
				JSONRPC: JSONRPCVersion, ID: req.ID,
				Error: &RPCError{Code: CodeInvalidParams, Message: err.Error()},
			})
			return
		}

		stream, err := NewStream(c.Writer, req.ID, artifactName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, &Response{
				JSONRPC: JSONRPCVersion, ID: req.ID,
				Error: &RPCError{Code: CodeInternalError, Message: err.Error()},
			})
			return
		}

		ctx := c.Request.Context()
		_ = stream.Submitted()

		rc := &RequestContext{
			Query:    req.Params.Message.Text(),
			Message:  req.Params.Message,
			Metadata: req.Params.Metadata,
		}
		if rc.Metadata == nil {
			rc.Metadata = map[string]any{}
		}

		if err := exec.Execute(ctx, rc, stream); err != nil {
			if ctx.Err() != nil {
				logger.Infow("Stream cancelled by caller", "task_id", stream.TaskID())
				return
			}
			logger.Errorw("Stream execution failed", "task_id", stream.TaskID(), "error", err)
			if !stream.Closed() {
				_ = stream.Fail(err)
			}
			return
		}
		if !stream.Closed() {
			_ = stream.Complete("")
		}
	}
}

// CardHandler 返回名片。
func CardHandler(card func() AgentCard) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, card())
	}
}
