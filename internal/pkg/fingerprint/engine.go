// Package fingerprint 将一组表结构或文档块归约为稳定的内容指纹。
//
// 处理流程：
//  1. 按 batchSize 切分输入，每批渲染为确定性的 markdown/文本
//  2. 在有界协程池上并行调用 LLM 生成批次摘要，fingerprint_id = md5(summary)
//  3. 仅一个批次成功时直接返回；否则合并批次摘要后再摘要一次
//  4. 最后基于顶层摘要生成智能体名称与描述
package fingerprint

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/internal/pkg/textutil"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/pool"
	"github.com/kart-io/dataagent/pkg/jsonx"
	"github.com/kart-io/dataagent/pkg/llm"
	fpopts "github.com/kart-io/dataagent/pkg/options/fingerprint"
)

// Item 是参与指纹计算的一个单元：一张表或一段文档。
type Item struct {
	Table *source.TableSchema
	Text  string
}

// Tables 将表结构包装为 Item。
func Tables(schemas []source.TableSchema) []Item {
	items := make([]Item, len(schemas))
	for i := range schemas {
		items[i] = Item{Table: &schemas[i]}
	}
	return items
}

// Documents 将文档块包装为 Item。
func Documents(docs []descriptor.Document) []Item {
	items := make([]Item, len(docs))
	for i, d := range docs {
		items[i] = Item{Text: d.PageContent}
	}
	return items
}

// BatchFingerprint 单个批次的指纹。
type BatchFingerprint struct {
	BatchNumber        int    `json:"batch_number"`
	FingerprintID      string `json:"fingerprint_id"`
	FingerprintSummary string `json:"fingerprint_summary"`
}

// Result 是一次 Analyze 的输出。
type Result struct {
	Summary          string
	FingerprintID    string
	Batches          []BatchFingerprint
	AgentName        string
	AgentDescription string
	CreatedAt        time.Time
}

// Metadata 返回随指纹文档发布的元数据。
func (r *Result) Metadata() map[string]any {
	return map[string]any{
		"fingerprint_id":         r.FingerprintID,
		"fingerprint_length":     utf8.RuneCountInString(r.Summary),
		"created_at":             r.CreatedAt.Format(time.RFC3339),
		"fingerprint_summary":    r.Summary,
		"agent_info_name":        r.AgentName,
		"agent_info_description": r.AgentDescription,
	}
}

// AgentInfo 是由摘要推导出的智能体名称与描述。
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Engine 指纹引擎。chat 应当已经过 llm.Gate 包装，保证进程级并发上限。
type Engine struct {
	chat llm.ChatProvider
	pool *pool.Pool
	opts *fpopts.Options
}

// NewEngine 创建指纹引擎，p 的容量即批次并发上限。
func NewEngine(chat llm.ChatProvider, p *pool.Pool, opts *fpopts.Options) *Engine {
	if opts == nil {
		opts = fpopts.NewOptions()
	}
	return &Engine{chat: chat, pool: p, opts: opts}
}

type batch struct {
	number  int
	content string
}

// Analyze 计算 items 的指纹。items 为空时返回 nil 且不调用 LLM。
// 失败的批次被丢弃，只有全部批次失败时才返回错误。
func (e *Engine) Analyze(ctx context.Context, items []Item, kind descriptor.Kind, batchSize int) (*Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	batches := partition(items, kind, descriptor.ClampBatchSize(batchSize))
	logger.Infow("Fingerprinting batches", "kind", string(kind), "items", len(items), "batches", len(batches))

	summaries, errs := pool.Map(ctx, e.pool, len(batches), func(ctx context.Context, i int) (string, error) {
		return e.summarize(ctx, batches[i].content)
	})

	var (
		fps      []BatchFingerprint
		firstErr error
	)
	for i, b := range batches {
		if errs[i] != nil {
			logger.Errorw("Batch fingerprint failed", "batch", b.number+1, "error", errs[i])
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		fps = append(fps, BatchFingerprint{
			BatchNumber:        b.number,
			FingerprintID:      textutil.MD5(summaries[i]),
			FingerprintSummary: summaries[i],
		})
	}

	if len(fps) == 0 {
		if firstErr == nil {
			return nil, errors.ErrNoFingerprint.WithMessage("all batches are empty")
		}
		return nil, errors.ErrNoFingerprint.WithCause(firstErr)
	}

	res := &Result{Batches: fps, CreatedAt: time.Now()}
	if len(fps) == 1 {
		res.Summary = fps[0].FingerprintSummary
		res.FingerprintID = fps[0].FingerprintID
	} else {
		parts := make([]string, len(fps))
		for i, fp := range fps {
			parts[i] = fp.FingerprintSummary
		}
		summary, err := e.summarize(ctx, combine(parts, e.opts.MaxCombinedChars))
		if err != nil {
			return nil, errors.ErrNoFingerprint.WithCause(err)
		}
		res.Summary = summary
		res.FingerprintID = textutil.MD5(summary)
	}

	info, err := e.AgentInfo(ctx, res.Summary)
	if err != nil {
		logger.Warnw("Agent info unavailable", "fingerprint_id", res.FingerprintID, "error", err)
	} else {
		res.AgentName = info.Name
		res.AgentDescription = info.Description
	}

	logger.Infow("Fingerprint generated",
		"fingerprint_id", res.FingerprintID,
		"batches", len(fps),
		"agent", res.AgentName,
	)
	return res, nil
}

// partition 切分并渲染批次，内容为空的批次不提交。
func partition(items []Item, kind descriptor.Kind, size int) []batch {
	var out []batch
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		content := render(items[start:end], kind)
		if strings.TrimSpace(content) == "" {
			continue
		}
		out = append(out, batch{number: start / size, content: content})
	}
	return out
}

func render(items []Item, kind descriptor.Kind) string {
	if kind.Relational() {
		tables := make([]source.TableSchema, 0, len(items))
		for _, it := range items {
			if it.Table != nil {
				tables = append(tables, *it.Table)
			}
		}
		return source.SchemaMarkdown(tables)
	}
	texts := make([]string, 0, len(items))
	for _, it := range items {
		texts = append(texts, it.Text)
	}
	return strings.Join(texts, "\n")
}

// combine 拼接批次摘要。总长不超过 maxChars 时原样拼接；
// 否则每个批次取前 maxChars/n 个字符，最终再截断到 maxChars。
func combine(summaries []string, maxChars int) string {
	if len(summaries) == 0 {
		return ""
	}
	total := 0
	for _, s := range summaries {
		total += utf8.RuneCountInString(s)
	}
	if total <= maxChars {
		return strings.Join(summaries, "\n")
	}

	per := maxChars / len(summaries)
	parts := make([]string, len(summaries))
	for i, s := range summaries {
		parts[i] = textutil.Truncate(s, per)
	}
	return textutil.Truncate(strings.Join(parts, "\n"), maxChars)
}

func (e *Engine) summarize(ctx context.Context, content string) (string, error) {
	out, err := llm.Generate(ctx, e.chat, fmt.Sprintf(summaryPrompt, content), "")
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.ErrParseFailure.WithMessage("empty fingerprint summary")
	}
	return out, nil
}

// AgentInfo 根据摘要生成智能体名称与描述。
// 模型输出经 jsonx 容错解析，失败时按配置间隔重试。
func (e *Engine) AgentInfo(ctx context.Context, summary string) (*AgentInfo, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: agentInfoPrompt},
		{Role: llm.RoleUser, Content: summary},
	}

	var lastErr error
	for attempt := 0; attempt <= e.opts.AgentInfoRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.opts.AgentInfoBackoff):
			}
		}

		out, err := e.chat.Chat(ctx, messages)
		if err != nil {
			lastErr = err
			logger.Warnw("Agent info request failed", "attempt", attempt+1, "error", err)
			continue
		}

		var info AgentInfo
		if err := jsonx.Unmarshal(out, &info); err != nil {
			lastErr = err
			logger.Warnw("Agent info not parseable", "attempt", attempt+1, "error", err)
			continue
		}
		if info.Name == "" {
			lastErr = errors.ErrParseFailure.WithMessage("agent name is empty")
			continue
		}
		return &info, nil
	}
	return nil, errors.ErrParseFailure.WithCause(lastErr)
}

// TablesSummary 生成表级业务摘要并抽取表名、字段与注释。
func (e *Engine) TablesSummary(ctx context.Context, schemaMarkdown string) (string, error) {
	out, err := llm.Generate(ctx, e.chat, fmt.Sprintf(tablesSummaryPrompt, schemaMarkdown), "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Relationships 将外键信息整理为 markdown 关系表。
func (e *Engine) Relationships(ctx context.Context, relationships string) (string, error) {
	out, err := llm.Generate(ctx, e.chat, fmt.Sprintf(relationshipPrompt, relationships), "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
