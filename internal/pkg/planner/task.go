package planner

import (
	"fmt"
	"strings"
)

// Status 任务执行状态。
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusInProgress Status = "inProgress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// SuccessSentinel 专家观察通过时附加在答案中的文本，编排器据此判定任务完成。
const SuccessSentinel = "The current answer addresses the question very well."

// Succeeded 报告专家最后一个输出是否携带成功标记。
func Succeeded(lastChunk string) bool {
	return strings.Contains(lastChunk, "reason:"+SuccessSentinel)
}

// Task 计划中的一步，ID 从 1 开始连续编号。
type Task struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
}

// TaskPlan 有序任务列表。
type TaskPlan struct {
	OriginalQuery string `json:"original_query"`
	Tasks         []Task `json:"tasks"`
}

// String 渲染为调试输出使用的任务清单。
func (p *TaskPlan) String() string {
	lines := make([]string, len(p.Tasks))
	for i, t := range p.Tasks {
		lines[i] = fmt.Sprintf("[%d]: %s - [%s]", t.ID, t.Description, t.Agent)
	}
	return "\nAll Tasks:\n" + strings.Join(lines, "\n") + "\n\n"
}

// TaskStatus 是带执行结果的任务，随请求元数据在编排器与专家间传递。
type TaskStatus struct {
	Task
	Answer string `json:"answer"`
	Status Status `json:"status"`
}

// Statuses 为计划中的每个任务创建 notStarted 状态。
func (p *TaskPlan) Statuses() []TaskStatus {
	out := make([]TaskStatus, len(p.Tasks))
	for i, t := range p.Tasks {
		out[i] = TaskStatus{Task: t, Status: StatusNotStarted}
	}
	return out
}

// StatusText 渲染任务状态列表，供提示词使用。
func StatusText(statuses []TaskStatus) string {
	var b strings.Builder
	for _, s := range statuses {
		fmt.Fprintf(&b, "Task %d: %s\n  Agent: %s\n  Status: %s\n  Answer: %s\n", s.ID, s.Description, s.Agent, s.Status, s.Answer)
	}
	return b.String()
}

const analysisAnswerLimit = 500

// FailureAnalysis 汇总失败任务，用于重新规划。
func FailureAnalysis(statuses []TaskStatus) string {
	var lines []string
	for _, s := range statuses {
		if s.Status != StatusFailed {
			continue
		}
		answer := []rune(s.Answer)
		if len(answer) > analysisAnswerLimit {
			answer = answer[:analysisAnswerLimit]
		}
		lines = append(lines, fmt.Sprintf("Task %d ('%s') assign to %s fail.Answer: %s...", s.ID, s.Description, s.Agent, string(answer)))
	}
	return strings.Join(lines, "\n")
}

// RemediationQuery 在原始问题后附加失败分析。
func RemediationQuery(query, analysis string) string {
	return query + "\n\nThe previous execution encountered the following issues:\n" + analysis + "\nPlease develop a better plan based on these problems."
}
