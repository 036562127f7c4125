// Package planner 将用户问题分解为分派给专家的有序任务。
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/jsonx"
	"github.com/kart-io/dataagent/pkg/llm"
)

// Planner LLM 驱动的任务分解器。
type Planner struct {
	chat llm.ChatProvider
}

// New 创建 Planner。
func New(chat llm.ChatProvider) *Planner {
	return &Planner{chat: chat}
}

// rawPlan 兼容模型输出的两种键名，id 由 Plan 重新编号故不解析。
type rawPlan struct {
	OriginalQuery      string `json:"original_query"`
	OriginalQueryCamel string `json:"originalQuery"`
	Tasks              []struct {
		Description string `json:"description"`
		Agent       string `json:"agent"`
	} `json:"tasks"`
}

// Plan 基于候选智能体生成计划。history 可为空；knowledge 为检索到的背景资料。
// 指派给非候选智能体或描述为空的任务被丢弃，其余任务按输出顺序编号为 1..N。
func (p *Planner) Plan(ctx context.Context, query string, cards []a2a.AgentCard, history, knowledge string) (*TaskPlan, error) {
	if len(cards) == 0 {
		return nil, errors.ErrEmptyPlan.WithMessage("no candidate agents")
	}

	hist := ""
	if strings.TrimSpace(history) != "" {
		hist = fmt.Sprintf(historySection, history)
	}
	system := fmt.Sprintf(plannerPrompt, hist, AgentsText(cards), knowledge)

	out, err := p.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: query},
	}, llm.WithJSONMode())
	if err != nil {
		return nil, errors.ErrLLMUnavailable.WithCause(err)
	}
	logger.Debugw("Planner output", "output", out)

	var raw rawPlan
	if err := jsonx.Unmarshal(out, &raw); err != nil {
		return nil, errors.ErrParseFailure.WithCause(err).WithMessage("decode task plan")
	}

	known := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		known[c.Name] = struct{}{}
	}

	plan := &TaskPlan{OriginalQuery: raw.OriginalQuery}
	if plan.OriginalQuery == "" {
		plan.OriginalQuery = raw.OriginalQueryCamel
	}
	if plan.OriginalQuery == "" {
		plan.OriginalQuery = query
	}
	for _, t := range raw.Tasks {
		agent := strings.TrimSpace(t.Agent)
		if _, ok := known[agent]; !ok {
			logger.Warnw("Drop task assigned to unknown agent", "agent", t.Agent, "description", t.Description)
			continue
		}
		if strings.TrimSpace(t.Description) == "" {
			continue
		}
		plan.Tasks = append(plan.Tasks, Task{ID: len(plan.Tasks) + 1, Description: t.Description, Agent: agent})
	}
	if len(plan.Tasks) == 0 {
		return nil, errors.ErrEmptyPlan.WithMessagef("planner produced no usable task for %q", query)
	}
	return plan, nil
}

// AgentsText 渲染智能体及技能清单。
func AgentsText(cards []a2a.AgentCard) string {
	blocks := make([]string, len(cards))
	for i, c := range cards {
		blocks[i] = fmt.Sprintf("%d. agent name: %s, description: %s, skills:%s", i+1, c.Name, c.Description, skillsText(c.Skills))
	}
	return strings.Join(blocks, "\n\n")
}

func skillsText(skills []a2a.Skill) string {
	var lines []string
	for i, s := range skills {
		lines = append(lines,
			fmt.Sprintf("Skill %d:", i+1),
			"  ID: "+s.ID,
			"  Name: "+s.Name,
			"  Description: "+s.Description,
		)
		if len(s.Tags) > 0 {
			lines = append(lines, "  Tags: "+strings.Join(s.Tags, ", "))
		}
		if len(s.Examples) > 0 {
			lines = append(lines, "  Examples: "+strings.Join(s.Examples, ", "))
		}
		lines = append(lines, "")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}
