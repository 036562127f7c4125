// Package biz 实现编排器：为问题挑选专家、规划任务、逐个分派，
// 失败时带着失败分析重新规划，最后流式合成答案并写入记忆与历史记录。
package biz

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/internal/pkg/planner"
	"github.com/kart-io/dataagent/internal/pkg/registry"
	"github.com/kart-io/dataagent/internal/pkg/session"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/llm"
	orchestratoropts "github.com/kart-io/dataagent/pkg/options/orchestrator"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

// 分派给专家的元数据键，与专家端解析的键一致。
const (
	MetaUserID        = "user_id"
	MetaAgentID       = "agent_id"
	MetaRunID         = "run_id"
	MetaTraceID       = "trace_id"
	MetaMemory        = "memory"
	MetaTasksStatus   = "current_tasks_status"
	MetaCurrentTask   = "current_task"
	MetaCurrentTaskID = "current_task_id"
)

// CardSource 提供当前可用的专家名片，由 *registry.Directory 实现。
type CardSource interface {
	Cards() []a2a.AgentCard
}

// Dispatcher 以流式 RPC 调用专家，由 *a2a.Client 实现。
type Dispatcher interface {
	Stream(ctx context.Context, url, query string, metadata map[string]any, fn func(text string) error) error
}

// Request 一次编排请求。
type Request struct {
	Query   string
	UserID  string
	RunID   string
	TraceID string
}

// Orchestrator 处理端到端请求，可被并发调用。
type Orchestrator struct {
	chat       llm.ChatProvider
	planner    *planner.Planner
	ranker     *registry.Ranker
	cards      CardSource
	dispatcher Dispatcher
	memory     session.Memory
	history    session.History
	opts       *orchestratoropts.Options
	metrics    *metrics.Metrics
}

// Option 配置 Orchestrator。
type Option func(*Orchestrator)

// WithMemory 设置记忆门面，未设置时不读写记忆。
func WithMemory(m session.Memory) Option {
	return func(o *Orchestrator) { o.memory = m }
}

// WithHistory 设置历史记录门面，仅在 enable-history 时使用。
func WithHistory(h session.History) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithRanker 替换名片排序器。
func WithRanker(r *registry.Ranker) Option {
	return func(o *Orchestrator) { o.ranker = r }
}

// WithMetrics 设置指标。
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New 创建编排器。
func New(chat llm.ChatProvider, cards CardSource, dispatcher Dispatcher, opts *orchestratoropts.Options, options ...Option) *Orchestrator {
	if opts == nil {
		opts = orchestratoropts.NewOptions()
	}
	o := &Orchestrator{
		chat:       chat,
		planner:    planner.New(chat),
		ranker:     registry.NewRanker(nil),
		cards:      cards,
		dispatcher: dispatcher,
		opts:       opts,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Handle 处理一次请求，所有输出通过 emit 发送。emit 返回错误或 ctx 取消时立即返回，
// 已发送的输出保持可见，剩余任务与合成步骤被跳过。
func (o *Orchestrator) Handle(ctx context.Context, req Request, emit func(string) error) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return errors.ErrInvalidParam.WithMessage("query must not be empty")
	}
	scope := session.Scope{UserID: req.UserID, AgentID: o.opts.AgentID, RunID: req.RunID}

	memory := o.recall(ctx, scope, req.Query)
	records := o.lookupHistory(ctx, scope)

	plan, err := o.plan(ctx, req.Query, session.HistoryText(records), memory)
	if err != nil {
		if errors.Is(err, errors.ErrEmptyPlan) {
			logger.Infow("No agent can serve the query", "run_id", req.RunID, "query", req.Query, "error", err)
			return emit(noAgentsText)
		}
		return err
	}
	if o.opts.Debug {
		if err := emit(plan.String()); err != nil {
			return err
		}
	}

	knowledge, diagnosis, err := o.execute(ctx, req, plan, emit)
	if err != nil {
		return err
	}

	prefix := ""
	if diagnosis != "" {
		prefix = fmt.Sprintf(diagnosisFmt, diagnosis)
	}
	answer, err := o.synthesize(ctx, req.Query, knowledge, memory, records, prefix, emit)
	if err != nil {
		return err
	}
	o.remember(ctx, scope, req.Query, answer)
	return nil
}

// plan 排序候选专家后调用规划器。
func (o *Orchestrator) plan(ctx context.Context, query, history, knowledge string) (*planner.TaskPlan, error) {
	ranked := o.ranker.Rank(ctx, query, o.cards.Cards(), o.opts.TopAgents)
	candidates := make([]a2a.AgentCard, len(ranked))
	for i, s := range ranked {
		candidates[i] = s.Card
	}
	logger.Infow("Candidate agents ranked", "agents", cardNames(candidates))

	return o.planner.Plan(ctx, query, candidates, history, knowledge)
}

// execute 执行计划，任务失败时重新规划，最多 MaxLoops 次。返回所有尝试收集到的任务答案；
// 预算耗尽时 diagnosis 为最后一次尝试的失败分析。重试横幅与耗尽提示不受 Debug 控制。
func (o *Orchestrator) execute(ctx context.Context, req Request, plan *planner.TaskPlan, emit func(string) error) ([]string, string, error) {
	var knowledge []string
	for attempt := 0; ; attempt++ {
		logger.Infow("Executing plan", "run_id", req.RunID, "attempt", attempt, "max_loops", o.opts.MaxLoops, "tasks", len(plan.Tasks))

		statuses := plan.Statuses()
		answers, err := o.runPlan(ctx, req, statuses, emit)
		knowledge = append(knowledge, answers...)
		if err != nil {
			return knowledge, "", err
		}

		if !anyFailed(statuses) {
			logger.Infow("All tasks completed successfully", "run_id", req.RunID)
			return knowledge, "", o.debug(emit, allSucceededText)
		}
		analysis := planner.FailureAnalysis(statuses)
		if attempt >= o.opts.MaxLoops {
			logger.Infow("Reached maximum retry count, stopping retries", "run_id", req.RunID, "max_loops", o.opts.MaxLoops)
			return knowledge, analysis, emit(fmt.Sprintf(maxRetryFmt, o.opts.MaxLoops))
		}

		logger.Infow("Plan execution failed, re-planning", "run_id", req.RunID, "retry", attempt+1, "analysis", analysis)
		if err := emit(fmt.Sprintf(retryBannerFmt, attempt+1, analysis)); err != nil {
			return knowledge, "", err
		}

		next, err := o.plan(ctx, planner.RemediationQuery(req.Query, analysis), "", "")
		if err != nil {
			if ctx.Err() != nil {
				return knowledge, "", ctx.Err()
			}
			logger.Errorw("Re-planning failed", "run_id", req.RunID, "error", err)
			return knowledge, analysis, emit(fmt.Sprintf(replanFailedFmt, o.opts.MaxLoops))
		}
		if err := o.debug(emit, fmt.Sprintf(replannedFmt, attempt+1)+next.String()); err != nil {
			return knowledge, "", err
		}
		if err := wait(ctx, o.opts.LoopRetryDelay); err != nil {
			return knowledge, "", err
		}
		plan = next
	}
}

// runPlan 按顺序分派任务，遇到第一个失败的任务即停止。statuses 被原地更新。
func (o *Orchestrator) runPlan(ctx context.Context, req Request, statuses []planner.TaskStatus, emit func(string) error) ([]string, error) {
	var answers []string
	for i := range statuses {
		task := &statuses[i]
		task.Status = planner.StatusInProgress
		logger.Infow("Dispatching task", "run_id", req.RunID, "task_id", task.ID, "agent", task.Agent, "description", task.Description)

		if err := o.debug(emit, fmt.Sprintf(taskHeaderFmt, task.ID, task.Description)); err != nil {
			return answers, err
		}

		answer, ok, err := o.dispatch(ctx, req, statuses, i, emit)
		if err != nil {
			return answers, err
		}
		task.Answer = answer
		task.Status = planner.StatusFailed
		if ok {
			task.Status = planner.StatusComplete
		}
		answers = append(answers, answer)
		o.observeTask(task.Agent, task.Status)
		logger.Infow("Task finished", "run_id", req.RunID, "task_id", task.ID, "status", task.Status)

		if !ok {
			break
		}
	}
	return answers, nil
}

// dispatch 调用任务所指派的专家并转发其输出。名片在分派时从目录实时查找，
// 规划后注销的专家按 agent-not-found 处理。只有 ctx 取消或 emit 失败时返回错误，
// 专家本身的失败表现为 ok=false。
func (o *Orchestrator) dispatch(ctx context.Context, req Request, statuses []planner.TaskStatus, i int, emit func(string) error) (string, bool, error) {
	task := statuses[i]
	card, found := findCard(o.cards.Cards(), task.Agent)
	if !found {
		logger.Warnw("Task assigned to unknown agent", "run_id", req.RunID, "task_id", task.ID, "agent", task.Agent)
		return agentNotFoundText, false, nil
	}

	md := map[string]any{
		MetaUserID:        req.UserID,
		MetaAgentID:       o.opts.AgentID,
		MetaRunID:         req.RunID,
		MetaTraceID:       req.TraceID,
		MetaMemory:        o.recall(ctx, session.Scope{UserID: req.UserID, AgentID: o.opts.AgentID, RunID: req.RunID}, task.Description),
		MetaTasksStatus:   json.MarshalString(statuses),
		MetaCurrentTask:   fmt.Sprintf(currentTaskFmt, task.ID, task.Description),
		MetaCurrentTaskID: strconv.Itoa(task.ID),
	}

	var chunks []string
	var emitErr error
	err := o.dispatcher.Stream(ctx, card.URL, task.Description, md, func(text string) error {
		chunks = append(chunks, text)
		if emitErr = emit(text); emitErr != nil {
			return emitErr
		}
		return nil
	})
	if emitErr != nil {
		return "", false, emitErr
	}
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	if err != nil {
		logger.Errorw("Expert call failed", "run_id", req.RunID, "task_id", task.ID, "agent", task.Agent, "url", card.URL, "error", err)
		chunks = append(chunks, fmt.Sprintf("%s: %v", dispatchErrorText, err))
		return strings.Join(chunks, "\n"), false, nil
	}
	if len(chunks) == 0 {
		return "", false, nil
	}
	return strings.Join(chunks, "\n"), planner.Succeeded(chunks[len(chunks)-1]), nil
}

// synthesize 流式生成最终答案，返回完整文本。prefix 非空时先于模型输出发送并计入答案。
func (o *Orchestrator) synthesize(ctx context.Context, query string, knowledge []string, memory string, records []session.HistoryRecord, prefix string, emit func(string) error) (string, error) {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: synthesisPrompt}}
	for _, r := range records {
		for _, m := range r.Messages {
			switch llm.Role(m.Role) {
			case llm.RoleUser, llm.RoleAssistant:
				messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
			default:
				logger.Warnw("Skip history message with unexpected role", "role", m.Role)
			}
		}
	}
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(synthesisUserTemplate, strings.Join(knowledge, "\n\n"), memory, query),
	})

	ch, err := o.chat.ChatStream(ctx, messages)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.ErrLLMUnavailable.WithCause(err)
	}

	var b strings.Builder
	if prefix != "" {
		b.WriteString(prefix)
		if err := emit(prefix); err != nil {
			return b.String(), err
		}
	}
	for chunk := range ch {
		if chunk.Err != nil {
			if ctx.Err() != nil {
				return b.String(), ctx.Err()
			}
			return b.String(), errors.ErrLLMUnavailable.WithCause(chunk.Err)
		}
		if chunk.Content == "" {
			continue
		}
		b.WriteString(chunk.Content)
		if err := emit(chunk.Content); err != nil {
			return b.String(), err
		}
	}
	return b.String(), ctx.Err()
}

// recall 检索与 query 相关的记忆，失败时返回空串。
func (o *Orchestrator) recall(ctx context.Context, scope session.Scope, query string) string {
	if o.memory == nil {
		return ""
	}
	items, err := o.memory.Search(ctx, query, scope, o.opts.MemoryLimit)
	if err != nil {
		logger.Warnw("Memory search failed", "run_id", scope.RunID, "error", err)
		return ""
	}
	return session.MemoryText(items)
}

func (o *Orchestrator) lookupHistory(ctx context.Context, scope session.Scope) []session.HistoryRecord {
	if !o.opts.EnableHistory || o.history == nil {
		return nil
	}
	records, err := o.history.Lookup(ctx, scope, o.opts.HistoryLimit)
	if err != nil {
		logger.Warnw("History lookup failed", "run_id", scope.RunID, "error", err)
		return nil
	}
	return records
}

// remember 写入本轮问答。请求已完成，写入失败只记录日志。
func (o *Orchestrator) remember(ctx context.Context, scope session.Scope, query, answer string) {
	messages := []session.Message{
		{Role: string(llm.RoleUser), Content: query},
		{Role: string(llm.RoleAssistant), Content: answer},
	}
	if o.opts.EnableHistory && o.history != nil {
		if _, err := o.history.Append(ctx, scope, messages); err != nil {
			logger.Warnw("History append failed", "run_id", scope.RunID, "error", err)
		}
	}
	if o.memory != nil {
		if _, err := o.memory.Add(ctx, scope, messages, nil); err != nil {
			logger.Warnw("Memory add failed", "run_id", scope.RunID, "error", err)
		}
	}
}

func (o *Orchestrator) debug(emit func(string) error, text string) error {
	if !o.opts.Debug {
		return nil
	}
	return emit(text)
}

func (o *Orchestrator) observeTask(agent string, status planner.Status) {
	if o.metrics != nil {
		o.metrics.OrchestratorTasks.WithLabelValues(agent, string(status)).Inc()
	}
}

func anyFailed(statuses []planner.TaskStatus) bool {
	for _, s := range statuses {
		if s.Status == planner.StatusFailed {
			return true
		}
	}
	return false
}

func findCard(cards []a2a.AgentCard, name string) (a2a.AgentCard, bool) {
	for _, c := range cards {
		if c.Name == name {
			return c, true
		}
	}
	return a2a.AgentCard{}, false
}

func cardNames(cards []a2a.AgentCard) []string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.Name
	}
	return names
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
