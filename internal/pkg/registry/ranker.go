package registry

import (
	"cmp"
	"context"
	"slices"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/internal/pkg/textutil"
	"github.com/kart-io/dataagent/pkg/llm"
)

// Scored 是带相关度分数的名片。
type Scored struct {
	Card  a2a.AgentCard `json:"agent_card"`
	Score float64       `json:"score"`
}

// Ranker 按与查询的相关度为名片排序。
// 配置了 embedder 时使用余弦相似度，否则或 embedding 失败时退化为关键词重叠率。
type Ranker struct {
	embedder llm.EmbeddingProvider
}

// NewRanker 创建排序器，embedder 可为 nil。建议传入 llm.CachedEmbeddingProvider，名片文本的向量会被缓存。
func NewRanker(embedder llm.EmbeddingProvider) *Ranker {
	return &Ranker{embedder: embedder}
}

// Rank 返回得分最高的 topN 张名片，topN <= 0 时返回全部。
func (r *Ranker) Rank(ctx context.Context, query string, cards []a2a.AgentCard, topN int) []Scored {
	if len(cards) == 0 {
		return nil
	}

	scores := r.semantic(ctx, query, cards)
	if scores == nil {
		scores = make([]float64, len(cards))
		for i, c := range cards {
			scores[i] = textutil.Overlap(query, c.SearchText())
		}
	}

	out := make([]Scored, len(cards))
	for i, c := range cards {
		out[i] = Scored{Card: c, Score: scores[i]}
	}
	slices.SortStableFunc(out, func(a, b Scored) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Card.Name, b.Card.Name)
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func (r *Ranker) semantic(ctx context.Context, query string, cards []a2a.AgentCard) []float64 {
	if r.embedder == nil {
		return nil
	}
	texts := make([]string, 0, len(cards)+1)
	texts = append(texts, query)
	for _, c := range cards {
		texts = append(texts, c.SearchText())
	}
	vecs, err := r.embedder.Embed(ctx, texts)
	if err != nil || len(vecs) != len(texts) {
		logger.Warnw("Agent ranking falls back to keyword overlap", "error", err)
		return nil
	}
	scores := make([]float64, len(cards))
	for i := range cards {
		scores[i] = textutil.CosineSimilarity(vecs[0], vecs[i+1])
	}
	return scores
}
