package retrieval

import (
	"context"
	"fmt"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/llm"
)

// embedBatch 单次 Embed 请求的最大文本数
const embedBatch = 32

// EmbedDocuments 分批计算文档向量，结果与 docs 一一对应。
func EmbedDocuments(ctx context.Context, embedder llm.EmbeddingProvider, docs []descriptor.Document) ([][]float32, error) {
	out := make([][]float32, 0, len(docs))
	for start := 0; start < len(docs); start += embedBatch {
		end := min(start+embedBatch, len(docs))
		texts := make([]string, 0, end-start)
		for _, d := range docs[start:end] {
			texts = append(texts, d.PageContent)
		}
		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents [%d,%d): %w", start, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d documents", len(vecs), len(texts))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// VectorHit 是向量库返回的一条命中。
type VectorHit struct {
	Content  string
	Metadata map[string]any
	Score    float32
}

// FilterHits 丢弃得分低于 threshold 的命中并转换为检索结果。
// 向量库只有单一得分，hybrid_score 与 score 相同。
func FilterHits(collection string, hits []VectorHit, threshold float64) *SearchResult {
	res := &SearchResult{Status: "success", Collection: collection, SearchType: "vector"}
	for _, h := range hits {
		if float64(h.Score) < threshold {
			continue
		}
		res.VectorResult = append(res.VectorResult, VectorResult{
			Content:     h.Content,
			Metadata:    h.Metadata,
			Score:       float64(h.Score),
			SearchType:  "vector",
			HybridScore: float64(h.Score),
		})
	}
	return res
}
