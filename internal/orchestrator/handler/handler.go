// Package handler 将编排器暴露为 A2A 流式端点。
package handler

import (
	"context"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/orchestrator/biz"
	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	"github.com/kart-io/dataagent/pkg/utils/id"
)

// Handler 由 *biz.Orchestrator 实现。
type Handler interface {
	Handle(ctx context.Context, req biz.Request, emit func(string) error) error
}

// OrchestratorHandler 实现 a2a.Executor：编排过程的每段输出作为一个 artifact 事件发送。
type OrchestratorHandler struct {
	name string
	biz  Handler
}

var _ a2a.Executor = (*OrchestratorHandler)(nil)

// NewOrchestratorHandler creates a new OrchestratorHandler.
func NewOrchestratorHandler(name string, h Handler) *OrchestratorHandler {
	return &OrchestratorHandler{name: name, biz: h}
}

// ArtifactName 返回 artifact 名称 "{agent}-result"。
func (h *OrchestratorHandler) ArtifactName() string {
	return h.name + "-result"
}

// Execute 实现 a2a.Executor。
func (h *OrchestratorHandler) Execute(ctx context.Context, rc *a2a.RequestContext, stream *a2a.Stream) error {
	req := ParseRequest(ctx, rc)
	logger.Infow("Orchestrator request received",
		"task_id", stream.TaskID(),
		"user_id", req.UserID,
		"run_id", req.RunID,
		"trace_id", req.TraceID,
		"query", req.Query,
	)
	if err := h.biz.Handle(ctx, req, stream.Artifact); err != nil {
		return err
	}
	return stream.Complete("")
}

// ParseRequest 从 A2A 请求中解析编排参数。缺少 run_id 时生成一个，缺少 trace_id 时使用当前 span。
func ParseRequest(ctx context.Context, rc *a2a.RequestContext) biz.Request {
	req := biz.Request{
		Query:   strings.TrimSpace(rc.Query),
		UserID:  a2a.MetaString(rc.Metadata, biz.MetaUserID),
		RunID:   a2a.MetaString(rc.Metadata, biz.MetaRunID),
		TraceID: a2a.MetaString(rc.Metadata, biz.MetaTraceID),
	}
	if req.RunID == "" {
		req.RunID = id.NewULID()
	}
	if req.TraceID == "" {
		req.TraceID = tracing.TraceIDFromContext(ctx)
	}
	return req
}
