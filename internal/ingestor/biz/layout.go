package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/fingerprint"
	"github.com/kart-io/dataagent/internal/pkg/source"
	"github.com/kart-io/dataagent/pkg/infra/pool"
)

// material 是组装关系型文档所需的全部内容。
type material struct {
	job           *descriptor.Job
	schemas       []source.TableSchema
	relationships string
	fingerprint   *fingerprint.Result
	batchSize     int
	// samples 获取指定表的采样文本，未开启采样时为 nil
	samples func(ctx context.Context, tables []string) (string, error)
}

func (m *material) baseMetadata() map[string]any {
	return map[string]any{
		"source_type":  string(m.job.Source.Type),
		"dd_namespace": m.job.Descriptor.Namespace,
		"dd_name":      m.job.Descriptor.Name,
	}
}

func (m *material) batches() [][]source.TableSchema {
	var out [][]source.TableSchema
	for start := 0; start < len(m.schemas); start += m.batchSize {
		out = append(out, m.schemas[start:min(start+m.batchSize, len(m.schemas))])
	}
	return out
}

// allInOne 生成单个文档：背景知识、根指纹、表结构、表关系、采样数据与示例。
func (c *Coordinator) allInOne(ctx context.Context, m *material) ([]descriptor.Document, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "key information:\n%s\n\n%s \n\ntable list:\n%s \n\ntable relationship:\n%s\n\n",
		m.job.Prompts.Background(), m.fingerprint.Summary, source.SchemaMarkdown(m.schemas), m.relationships)
	if m.samples != nil {
		samples, err := m.samples(ctx, source.TableNames(m.schemas))
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&sb, "sample data:\n%s\n\n", samples)
	}
	fmt.Fprintf(&sb, "fewshots:\n%s\n\n", m.job.Prompts.FewshotText())

	md := m.baseMetadata()
	md["fingerprint_id"] = m.fingerprint.FingerprintID
	md["fingerprint_summary"] = m.fingerprint.Summary
	return []descriptor.Document{{PageContent: sb.String(), Metadata: md}}, nil
}

// batch 每批表生成一个文档，携带该批次的指纹。
func (c *Coordinator) batch(ctx context.Context, m *material) ([]descriptor.Document, error) {
	byNumber := make(map[int]fingerprint.BatchFingerprint, len(m.fingerprint.Batches))
	for _, b := range m.fingerprint.Batches {
		byNumber[b.BatchNumber] = b
	}

	batches := m.batches()
	docs := make([]descriptor.Document, 0, len(batches))
	for i, tables := range batches {
		fp, ok := byNumber[i]
		if !ok {
			logger.Warnw("Batch fingerprint does not exist", "collection", m.job.Descriptor.CollectionID(), "batch", i+1)
		}

		content := fmt.Sprintf("%s \n\n %s \n\ntable relationship:\n%s\n\n",
			fp.FingerprintSummary, source.SchemaMarkdown(tables), m.relationships)
		if m.samples != nil {
			samples, err := m.samples(ctx, source.TableNames(tables))
			if err != nil {
				return nil, err
			}
			content += "sample data:\n" + samples
		}

		md := m.baseMetadata()
		md["fingerprint_id"] = fp.FingerprintID
		docs = append(docs, descriptor.Document{PageContent: content, Metadata: md})
		logger.Debugw("Batch document built", "batch", i+1, "total", len(batches), "tables", len(tables))
	}
	return docs, nil
}

// dictionary 对每批表并行生成表级摘要，合并为一个字典文档。
// 采样数据不写入文档，由专家按选中的表实时获取。
func (c *Coordinator) dictionary(ctx context.Context, m *material) ([]descriptor.Document, error) {
	batches := m.batches()
	summaries, errs := pool.Map(ctx, c.summaries, len(batches), func(ctx context.Context, i int) (string, error) {
		return c.engine.TablesSummary(ctx, source.SchemaMarkdown(batches[i]))
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, err := range errs {
		if err != nil {
			logger.Errorw("Table summary failed", "collection", m.job.Descriptor.CollectionID(), "batch", i+1, "error", err)
			summaries[i] = ""
		}
	}

	content := fmt.Sprintf("key information:\n%s\n\ntable list:\n%s\n\ntable relationship:\n%s\n\nfewshots:\n%s\n\n",
		m.job.Prompts.Background(), strings.Join(summaries, "\n"), m.relationships, m.job.Prompts.FewshotText())
	md := m.baseMetadata()
	md["fingerprint_id"] = m.fingerprint.FingerprintID
	return []descriptor.Document{{PageContent: content, Metadata: md}}, nil
}
