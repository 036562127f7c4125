package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/planner"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/jsonx"
	"github.com/kart-io/dataagent/pkg/llm"
)

const (
	parseFailureAnswer = "System error: Unable to process model response"
	fallbackQueryFmt   = "%s (attempt %d)"
)

// 指标中的步骤路径与结果。
const (
	pathSQL          = "sql"
	pathNoSQL        = "nosql"
	pathUnstructured = "unstructured"

	outcomeFinished = "finished"
	outcomeRequery  = "requery"
	outcomeError    = "error"
)

// llmResult 是生成类提示词的输出。
type llmResult struct {
	Answer     string `json:"answer"`
	Conclusion string `json:"conclusion"`
	Requery    string `json:"requery"`
}

type taskAnalysis struct {
	Task       string `json:"task"`
	Conclusion string `json:"conclusion"`
}

type observation struct {
	Reason     string `json:"reason"`
	Conclusion string `json:"conclusion"`
}

type requeryResult struct {
	Requery    string `json:"requery"`
	Conclusion string `json:"conclusion"`
}

// runStep 执行一步。除 ctx 取消外，任何错误都转为重新提问并返回提示文本。
// 未结束的一步总会换一个新问题进入下一步（最后一步除外）。
func (v *invocation) runStep(ctx context.Context) stepResult {
	var res stepResult
	path, out, err := v.execute(ctx, &res)
	if err != nil {
		if ctx.Err() != nil {
			return res
		}
		logger.Errorw("Expert step failed", "agent", v.binding.Name, "step", v.step, "query", v.query, "error", err)
		v.saveStep(v.query, "step error : "+err.Error())
		v.retry(ctx, "")
		v.observeStep(path, outcomeError)
		res.answer = v.noKnowledge()
		return res
	}

	v.saveStep(v.query, out.Answer)
	switch out.Conclusion {
	case conclusionTerminate:
		v.state = StateFinished
		v.observeStep(path, outcomeFinished)
	case conclusionContinue:
		v.retry(ctx, out.Requery)
		v.observeStep(path, outcomeRequery)
	default:
		v.retry(ctx, "")
		v.observeStep(path, outcomeError)
	}

	res.answer = out.Answer
	if res.answer == "" {
		res.answer = v.noKnowledge()
	}
	return res
}

// retry 回到 Idle 并切换到下一个问题。candidate 不可用时调用 requery 生成，
// 仍不可用时使用带序号的原始问题，保证 oldQueries 每步增长一条且不重复。
func (v *invocation) retry(ctx context.Context, candidate string) {
	v.state = StateIdle
	if v.step >= v.opts.MaxSteps {
		return
	}
	next := strings.TrimSpace(candidate)
	if !v.usable(next) {
		next = v.requery(ctx)
	}
	if !v.usable(next) {
		next = fmt.Sprintf(fallbackQueryFmt, v.originalQuery, v.step+1)
		logger.Warnw("Requery unusable, falling back to numbered query", "agent", v.binding.Name, "step", v.step, "query", next)
	}
	v.advance(next)
}

func (v *invocation) observeStep(path, outcome string) {
	if v.metrics != nil {
		v.metrics.ExpertSteps.WithLabelValues(path, outcome).Inc()
	}
}

func (v *invocation) execute(ctx context.Context, res *stepResult) (string, *llmResult, error) {
	if v.binding.Type == descriptor.AgentUnstructured {
		out, err := v.answerUnstructured(ctx)
		return pathUnstructured, out, err
	}

	analysis, err := v.analyzeTask(ctx)
	if err != nil {
		return pathNoSQL, nil, err
	}
	if analysis.Conclusion != conclusionSQL {
		out, err := v.answerCommon(ctx)
		return pathNoSQL, out, err
	}
	out, err := v.answerSQL(ctx, res)
	return pathSQL, out, err
}

func (v *invocation) answerUnstructured(ctx context.Context) (*llmResult, error) {
	knowledge, err := v.Knowledge(ctx, v.query)
	if err != nil {
		return nil, err
	}
	system := render(unstructuredPrompt,
		"{current_time}", v.currentTime(),
		"{history_querys}", v.historyQueries(true),
		"{memory}", v.req.Memory,
		"{knowledge}", knowledge,
	)
	out, err := v.generate(ctx, "unstructured", system)
	if err != nil {
		return nil, err
	}
	if out.Conclusion == conclusionTerminate {
		err = v.review(ctx, out, "observe-unstructured", observeUnstructuredPrompt)
	}
	return out, err
}

func (v *invocation) answerCommon(ctx context.Context) (*llmResult, error) {
	system := render(commonPrompt,
		"{current_time}", v.currentTime(),
		"{current_tasks_status}", planner.StatusText(v.statuses),
		"{current_task}", v.currentTask(),
	)
	out, err := v.generate(ctx, "common", system)
	if err != nil {
		return nil, err
	}
	if out.Conclusion == conclusionTerminate {
		err = v.review(ctx, out, "observe-common", observeCommonPrompt)
	}
	return out, err
}

// review 复核非 SQL 答案。未通过时改为 continue 并重新提问；通过时答案附加成功标记。
func (v *invocation) review(ctx context.Context, out *llmResult, name, prompt string) error {
	system := render(prompt,
		"{current_time}", v.currentTime(),
		"{knowledge}", planner.StatusText(v.statuses),
	)
	obs, err := v.observe(ctx, name, system, out.Answer)
	if err != nil {
		return err
	}
	if obs.Conclusion == conclusionContinue {
		out.Conclusion = conclusionContinue
		v.state = StateIdle
		if q := v.requery(ctx); q != "" {
			out.Requery = q
		}
		out.Answer = "knowledge can do not meet query, \n\nreason: " + obs.Reason
		return nil
	}
	out.Answer = fmt.Sprintf("%s, \n\nreason:%s ,%s", out.Answer, SuccessSentinel, obs.Reason)
	return nil
}

func (v *invocation) analyzeTask(ctx context.Context) (*taskAnalysis, error) {
	system := render(taskAnalyzePrompt,
		"{current_time}", v.currentTime(),
		"{current_tasks_status}", planner.StatusText(v.statuses),
		"{current_task}", v.query,
	)
	var out taskAnalysis
	err := v.ask(ctx, "task-analyze", system, v.query, &out)
	if errors.Is(err, errors.ErrParseFailure) {
		return &taskAnalysis{Task: v.query, Conclusion: conclusionError}, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Infow("Expert task analyzed", "agent", v.binding.Name, "query", v.query, "action", out.Conclusion)
	return &out, nil
}

// generate 调用生成类提示词。无法解析的输出降级为 conclusion=error 的结果。
func (v *invocation) generate(ctx context.Context, name, system string) (*llmResult, error) {
	if v.stuck {
		system = stuckPrompt + "\n" + system
	}
	var out llmResult
	err := v.ask(ctx, name, system, v.query, &out)
	if errors.Is(err, errors.ErrParseFailure) {
		return &llmResult{Answer: parseFailureAnswer, Conclusion: conclusionError}, nil
	}
	if err != nil {
		return nil, err
	}
	out.Conclusion = strings.ToLower(strings.TrimSpace(out.Conclusion))
	return &out, nil
}

func (v *invocation) observe(ctx context.Context, name, system, answer string) (*observation, error) {
	user := fmt.Sprintf("question: %s\n\nanswer: %s", v.query, answer)
	var out observation
	if err := v.ask(ctx, name, system, user, &out); err != nil {
		return nil, err
	}
	out.Conclusion = strings.ToLower(strings.TrimSpace(out.Conclusion))
	return &out, nil
}

// requery 生成一个新问题，失败时返回空字符串。
func (v *invocation) requery(ctx context.Context) string {
	system := render(requeryPrompt,
		"{current_time}", v.currentTime(),
		"{step_history}", v.stepHistory(),
		"{original_query}", v.originalQuery,
		"{history_querys}", v.historyQueries(true),
	)
	return v.askRequery(ctx, "requery", system)
}

func (v *invocation) requerySQL(ctx context.Context, sql, information, knowledge string) string {
	system := render(requerySQLPrompt,
		"{current_time}", v.currentTime(),
		"{step_history}", v.stepHistory(),
		"{sql}", sql,
		"{information}", information,
		"{knowledge}", knowledge,
		"{original_query}", v.originalQuery,
		"{history_querys}", v.historyQueries(true),
	)
	return v.askRequery(ctx, "requery-sql", system)
}

func (v *invocation) askRequery(ctx context.Context, name, system string) string {
	var out requeryResult
	if err := v.ask(ctx, name, system, v.query, &out); err != nil {
		logger.Warnw("Requery failed", "agent", v.binding.Name, "call", name, "error", err)
		return ""
	}
	if strings.ToLower(strings.TrimSpace(out.Conclusion)) != conclusionTerminate {
		return ""
	}
	return strings.TrimSpace(out.Requery)
}

// ask 发送一轮 system + user 消息并解析 JSON 输出，解析失败时重试至 ParseAttempts 次。
func (v *invocation) ask(ctx context.Context, name, system, user string, out any) error {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}

	var lastErr error
	for attempt := 1; attempt <= v.opts.ParseAttempts; attempt++ {
		reply, err := v.chat.Chat(ctx, messages, llm.WithJSONMode())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.ErrLLMUnavailable.WithCause(err)
		}
		logger.Debugw("Expert LLM answer", "agent", v.binding.Name, "call", name, "answer", reply)

		if lastErr = jsonx.Unmarshal(reply, out); lastErr == nil {
			return nil
		}
		logger.Warnw("Unparseable LLM answer", "agent", v.binding.Name, "call", name, "attempt", attempt, "error", lastErr)
	}
	return errors.ErrParseFailure.WithCause(lastErr).WithMessagef("decode %s answer", name)
}
