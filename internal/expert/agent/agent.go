// Package agent 实现专家的单次调用循环：生成 → 执行 → 观察 → 重新提问。
//
// 结构化描述符先由 LLM 判断是否需要 SQL：
//   - sql：检索知识，（字典模式下）选表并枚举维度取值，生成 SQL 并执行，由观察者判定结果
//   - nosql：基于任务状态直接推理，由观察者复核
//
// 非结构化描述符检索知识后直接回答并复核。观察未通过时重新提问进入下一步，
// 观察通过（Finished）时立即结束循环。
package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/planner"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/internal/pkg/textutil"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	"github.com/kart-io/dataagent/pkg/infra/pool"
	"github.com/kart-io/dataagent/pkg/llm"
	expertopts "github.com/kart-io/dataagent/pkg/options/expert"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
)

// State 单次调用的状态。
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateFinished State = "finished"
	StateError    State = "error"
)

// SuccessSentinel 观察通过的答案携带该文本。
const SuccessSentinel = planner.SuccessSentinel

const (
	conclusionTerminate = "terminate"
	conclusionContinue  = "continue"
	conclusionSQL       = "sql"
	conclusionError     = "error"

	timeLayout = "2006-01-02 15:04:05"
)

// Request 是一次专家调用的输入。
type Request struct {
	Query         string
	Memory        string
	CurrentTask   string
	Statuses      []planner.TaskStatus
	CurrentTaskID int
	UserID        string
	RunID         string
	TraceID       string
}

// StepStatus 记录一步的问题与答案，重新提问时作为历史。
type StepStatus struct {
	ID     int    `json:"id"`
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Agent 绑定一个数据描述符的专家，可被并发调用。
type Agent struct {
	chat        llm.ChatProvider
	binding     descriptor.Binding
	collections []string
	opts        *expertopts.Options

	backend retrieval.Backend
	search  *retrievalopts.Options
	reader  source.Reader
	pool    *pool.Pool
	ownPool bool
	gate    *llm.Gate
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option 配置 Agent。
type Option func(*Agent)

// WithBackend 设置知识检索后端。
func WithBackend(b retrieval.Backend, search *retrievalopts.Options) Option {
	return func(a *Agent) {
		a.backend = b
		if search != nil {
			a.search = search
		}
	}
}

// WithReader 设置结构化描述符的数据源。
func WithReader(r source.Reader) Option {
	return func(a *Agent) { a.reader = r }
}

// WithPool 设置维度查询使用的协程池。
func WithPool(p *pool.Pool) Option {
	return func(a *Agent) { a.pool = p }
}

// WithGate 设置进程级并发闸门，维度查询在执行前获取名额。
func WithGate(g *llm.Gate) Option {
	return func(a *Agent) { a.gate = g }
}

// WithMetrics 设置指标。
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithClock 替换时钟，提示词中的当前时间由它产生。
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New 创建专家。结构化描述符必须提供 Reader。
func New(chat llm.ChatProvider, binding descriptor.Binding, collections []string, opts *expertopts.Options, options ...Option) (*Agent, error) {
	if opts == nil {
		opts = expertopts.NewOptions()
	}
	a := &Agent{
		chat:        chat,
		binding:     binding,
		collections: collections,
		opts:        opts,
		search:      retrievalopts.NewOptions(),
		now:         time.Now,
	}
	for _, o := range options {
		o(a)
	}

	switch binding.Type {
	case descriptor.AgentStructured:
		if a.reader == nil {
			return nil, errors.ErrInvalidConfig.WithMessagef("structured descriptor %q requires a source reader", binding.Name)
		}
	case descriptor.AgentUnstructured:
	default:
		return nil, errors.ErrInvalidConfig.WithMessagef("unsupported descriptor type %q", binding.Type)
	}

	if a.pool == nil {
		p, err := pool.NewPool("expert-dimension", pool.DimensionPool, &pool.Config{
			Capacity:       opts.DimensionWorkers,
			ExpiryDuration: 10 * time.Second,
		})
		if err != nil {
			return nil, err
		}
		a.pool = p
		a.ownPool = true
	}
	return a, nil
}

// Name 返回绑定的描述符名称。
func (a *Agent) Name() string { return a.binding.Name }

// Close 释放自建的协程池。
func (a *Agent) Close() {
	if a.ownPool {
		a.pool.Release()
	}
}

// Knowledge 检索与 query 相关的知识，直接返回模式使用。
func (a *Agent) Knowledge(ctx context.Context, query string) (string, error) {
	if a.backend == nil || len(a.collections) == 0 {
		return "", nil
	}
	res := retrieval.SearchAll(ctx, a.backend, a.collections, retrieval.NewSearchRequest(query, a.search), a.search.Parallelism)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return res.Content, nil
}

// Run 驱动循环直到 Finished 或步数用尽，每步结束调用一次 emit。
// emit 返回错误或 ctx 取消时立即返回。
func (a *Agent) Run(ctx context.Context, req Request, emit func(string) error) error {
	_, err := a.run(ctx, req, emit)
	return err
}

func (a *Agent) run(ctx context.Context, req Request, emit func(string) error) (*invocation, error) {
	v := a.newInvocation(req)
	v.state = StateRunning

	for v.step < a.opts.MaxSteps && v.state != StateFinished {
		v.step++
		header := fmt.Sprintf("step %d/%d: query: %s", v.step, a.opts.MaxSteps, v.query)
		logger.Infow("Expert step", "agent", a.binding.Name, "step", v.step, "query", v.query, "run_id", req.RunID)

		res := v.runStep(ctx)
		if err := ctx.Err(); err != nil {
			v.state = StateError
			return v, err
		}
		v.answers = append(v.answers, res.answer)

		if err := emit(res.text(header)); err != nil {
			v.state = StateError
			return v, err
		}

		if !v.stuck && v.isStuck() {
			v.stuck = true
			logger.Warnw("Expert detected repeated answers", "agent", a.binding.Name, "step", v.step)
		}
	}
	if v.state != StateFinished {
		logger.Warnw("Expert step budget exhausted", "agent", a.binding.Name, "max_steps", a.opts.MaxSteps, "query", v.originalQuery)
	}
	return v, nil
}

// invocation 是一次 Run 的可变状态，只在调用方 goroutine 中访问。
type invocation struct {
	*Agent
	req           Request
	query         string
	originalQuery string
	oldQueries    []string
	steps         []StepStatus
	answers       []string
	statuses      []planner.TaskStatus
	state         State
	step          int
	stuck         bool
}

func (a *Agent) newInvocation(req Request) *invocation {
	return &invocation{
		Agent:         a,
		req:           req,
		query:         req.Query,
		originalQuery: req.Query,
		statuses:      slices.Clone(req.Statuses),
		state:         StateIdle,
	}
}

func (v *invocation) currentTime() string {
	return v.now().Format(timeLayout)
}

func (v *invocation) currentTask() string {
	if v.req.CurrentTask != "" {
		return v.req.CurrentTask
	}
	return v.query
}

func (v *invocation) noKnowledge() string {
	return fmt.Sprintf("No relevant knowledge available to answer the question: %s, will try a different question!", v.originalQuery)
}

func (v *invocation) saveStep(query, answer string) {
	v.steps = append(v.steps, StepStatus{ID: v.step, Query: query, Answer: answer})
}

// usable 报告 q 是否可以作为下一个问题：非空，且不同于当前与历史问题。
func (v *invocation) usable(q string) bool {
	return q != "" && q != v.query && !slices.Contains(v.oldQueries, q)
}

// advance 切换到新问题，当前问题进入 oldQueries。不可用的新问题被忽略。
func (v *invocation) advance(next string) {
	next = strings.TrimSpace(next)
	if !v.usable(next) {
		logger.Debugw("Requery ignored", "agent", v.binding.Name, "requery", next)
		return
	}
	v.oldQueries = append(v.oldQueries, v.query)
	v.query = next
	for i := range v.statuses {
		if v.statuses[i].ID == v.req.CurrentTaskID {
			v.statuses[i].Description = next
			break
		}
	}
}

// historyQueries 渲染已尝试过的问题，includeCurrent 时包含当前问题。
func (v *invocation) historyQueries(includeCurrent bool) string {
	queries := v.oldQueries
	if includeCurrent {
		queries = append(slices.Clone(queries), v.query)
	}
	lines := make([]string, len(queries))
	for i, q := range queries {
		lines[i] = fmt.Sprintf("query %d: %s", i+1, q)
	}
	return strings.Join(lines, "\n")
}

func (v *invocation) stepHistory() string {
	if len(v.steps) == 0 {
		return "No historical step records"
	}
	var b strings.Builder
	for _, s := range v.steps {
		fmt.Fprintf(&b, "Step %d:\n  Query: %s\n  Answer: %s\n\n", s.ID, s.Query, s.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// isStuck 报告最后一个答案是否已重复出现 DuplicateThreshold 次，比较时同时考虑空白归一化后的文本。
func (v *invocation) isStuck() bool {
	n := len(v.answers)
	if n < 2 || v.answers[n-1] == "" {
		return false
	}
	last := v.answers[n-1]
	norm := textutil.NormalizeSpace(last)
	count := 1
	for _, a := range v.answers[:n-1] {
		if a == last || textutil.NormalizeSpace(a) == norm {
			count++
		}
	}
	return count >= v.opts.DuplicateThreshold
}

// stepResult 是一步的输出。
type stepResult struct {
	answer     string
	dimensions string
	reason     string
}

func (r stepResult) text(header string) string {
	var conditions string
	switch {
	case r.dimensions == "" && r.reason == "":
		return fmt.Sprintf("%s\n\nanswer: %s\n", header, r.answer)
	case r.reason == "":
		conditions = r.dimensions
	case r.dimensions == "":
		conditions = r.reason
	default:
		conditions = r.dimensions + ", " + r.reason
	}
	return fmt.Sprintf("%s\n\nconditions:%s\n\nanswer: %s\n", header, conditions, r.answer)
}
