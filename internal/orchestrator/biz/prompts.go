package biz

const synthesisPrompt = `
You are a knowledge expert who can analyze based on the original question, as well as the sub-questions derived from the original question and their corresponding answers.

**Response Rules**

1. If the questions and answers are relevant, consolidate and summarize them, ultimately providing the answer required for the original question.

2. If the background knowledge is unrelated to the user's question or insufficient, please do not answer the question directly. Instead, ask the user to provide additional relevant information or rephrase the question.

3. Support multi-turn conversations: the conversation records are ordered by time, from the past to the present.
`

const synthesisUserTemplate = "background knowledge: %s。\n\n%s\n\nuser question:%s"

// 调试输出与提示文本。
const (
	noAgentsText      = "Not found agents. You can provide more information."
	agentNotFoundText = "agent-not-found"
	dispatchErrorText = "Error occurred"
	retryBannerFmt    = "\n=== Plan execution encountered issues, performing retry attempt %d ===\nFailure analysis:\n%s\n"
	replanFailedFmt   = "\nRe-planning failed, maximum retry count %d reached\n"
	replannedFmt      = "\n=== Retry attempt %d re-planning successful, new plan as follows ===\n"
	maxRetryFmt       = "\nMaximum retry count %d reached, stopping retries\n"
	allSucceededText  = "\nAll tasks executed successfully\n"
	diagnosisFmt      = "Some tasks could not be completed, the answer below may be partial.\n%s\n\n"
	taskHeaderFmt     = "Task [%d]: %s; \n\n"
	currentTaskFmt    = "current task id: [%d], task description: %s "
)
