// Package handler 将专家循环暴露为 A2A 流式端点。
package handler

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/expert/agent"
	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/internal/pkg/planner"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// 请求元数据键。
const (
	MetaTasksStatus   = "current_tasks_status"
	MetaCurrentTaskID = "current_task_id"
	MetaCurrentTask   = "current_task"
	MetaMemory        = "memory"
	MetaUserID        = "user_id"
	MetaRunID         = "run_id"
	MetaTraceID       = "trace_id"
	MetaDirectReturn  = "direct_return"

	directReturnEnabled = "enable"
)

// Runner 是被暴露的专家，由 *agent.Agent 实现。
type Runner interface {
	Name() string
	Knowledge(ctx context.Context, query string) (string, error)
	Run(ctx context.Context, req agent.Request, emit func(string) error) error
}

// ExpertHandler 实现 a2a.Executor：每一步的输出作为一个 artifact 事件发送。
type ExpertHandler struct {
	runner       Runner
	directReturn bool
}

var _ a2a.Executor = (*ExpertHandler)(nil)

// NewExpertHandler creates a new ExpertHandler. directReturn 为 true 时所有请求都直接返回知识。
func NewExpertHandler(runner Runner, directReturn bool) *ExpertHandler {
	return &ExpertHandler{runner: runner, directReturn: directReturn}
}

// ArtifactName 返回 artifact 名称 "{agent}-result"。
func (h *ExpertHandler) ArtifactName() string {
	return h.runner.Name() + "-result"
}

// Execute 实现 a2a.Executor。
func (h *ExpertHandler) Execute(ctx context.Context, rc *a2a.RequestContext, stream *a2a.Stream) error {
	req, err := ParseRequest(ctx, rc)
	if err != nil {
		return err
	}
	logger.Infow("Expert request received",
		"agent", h.runner.Name(),
		"task_id", stream.TaskID(),
		"run_id", req.RunID,
		"current_task_id", req.CurrentTaskID,
		"query", req.Query,
	)

	if h.directReturn || a2a.MetaString(rc.Metadata, MetaDirectReturn) == directReturnEnabled {
		knowledge, err := h.runner.Knowledge(ctx, req.Query)
		if err != nil {
			return err
		}
		if err := stream.Artifact(knowledge); err != nil {
			return err
		}
		return stream.Complete("")
	}

	if err := h.runner.Run(ctx, req, stream.Artifact); err != nil {
		return err
	}
	return stream.Complete("")
}

// ParseRequest 从 A2A 请求中解析专家调用参数。
// current_tasks_status 可以是 JSON 字符串或数组，current_task_id 可以是字符串或数字。
func ParseRequest(ctx context.Context, rc *a2a.RequestContext) (agent.Request, error) {
	md := rc.Metadata
	req := agent.Request{
		Query:       strings.TrimSpace(rc.Query),
		Memory:      a2a.MetaString(md, MetaMemory),
		CurrentTask: a2a.MetaString(md, MetaCurrentTask),
		UserID:      a2a.MetaString(md, MetaUserID),
		RunID:       a2a.MetaString(md, MetaRunID),
		TraceID:     a2a.MetaString(md, MetaTraceID),
	}
	if req.Query == "" {
		return req, errors.ErrInvalidParam.WithMessage("query must not be empty")
	}
	if req.TraceID == "" {
		req.TraceID = tracing.TraceIDFromContext(ctx)
	}

	if raw := strings.TrimSpace(a2a.MetaString(md, MetaTasksStatus)); raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &req.Statuses); err != nil {
			return req, errors.ErrInvalidParam.WithCause(err).WithMessagef("decode %s", MetaTasksStatus)
		}
	}

	if raw := strings.Trim(a2a.MetaString(md, MetaCurrentTaskID), `" `); raw != "" {
		id, err := parseTaskID(raw)
		if err != nil {
			return req, errors.ErrInvalidParam.WithCause(err).WithMessagef("decode %s", MetaCurrentTaskID)
		}
		req.CurrentTaskID = id
	}
	if req.CurrentTask == "" {
		req.CurrentTask = currentTaskDescription(req.Statuses, req.CurrentTaskID)
	}
	return req, nil
}

// parseTaskID 接受 "3" 与 JSON 数字编码出的 "3.0" 形式。
func parseTaskID(raw string) (int, error) {
	if id, err := strconv.Atoi(raw); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("task id %s is not an integer", raw)
	}
	return int(f), nil
}

func currentTaskDescription(statuses []planner.TaskStatus, id int) string {
	for _, s := range statuses {
		if s.ID == id {
			return s.Description
		}
	}
	return ""
}
