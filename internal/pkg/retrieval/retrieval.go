// Package retrieval 将知识集合的写入与检索抽象为统一的 Backend 接口。
// 支持 data-services HTTP 后端、Milvus 与 Qdrant 向量库。
package retrieval

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
)

// SearchRequest 单集合检索参数。
type SearchRequest struct {
	Query           string  `json:"query"`
	SearchType      string  `json:"search_type"`
	Limit           int     `json:"limit"`
	HybridThreshold float64 `json:"hybrid_threshold"`
	MemoryThreshold float64 `json:"memory_threshold"`
	EnableGraph     bool    `json:"enable_graph,omitempty"`
}

// NewSearchRequest 按配置构造检索参数。
func NewSearchRequest(query string, opts *retrievalopts.Options) SearchRequest {
	return SearchRequest{
		Query:           query,
		SearchType:      opts.SearchType,
		Limit:           opts.Limit,
		HybridThreshold: opts.HybridThreshold,
		MemoryThreshold: opts.MemoryThreshold,
		EnableGraph:     opts.EnableGraph,
	}
}

// VectorResult 文档命中。
type VectorResult struct {
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata"`
	Score       float64        `json:"score"`
	SearchType  string         `json:"search_type,omitempty"`
	HybridScore float64        `json:"hybrid_score"`
}

// MemoryItem 记忆命中，由后端负责抽取与去重。
type MemoryItem struct {
	ID        string         `json:"id"`
	Memory    string         `json:"memory"`
	Hash      string         `json:"hash"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at,omitempty"`
	UserID    string         `json:"user_id"`
	AgentID   string         `json:"agent_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
}

// SearchResult 单集合检索结果。
type SearchResult struct {
	Status       string         `json:"status"`
	Collection   string         `json:"collection"`
	SearchType   string         `json:"search_type"`
	VectorResult []VectorResult `json:"vector_result"`
	MemoryResult []MemoryItem   `json:"memory_result"`
}

// Content 依次拼接文档内容与非空记忆。
func (r *SearchResult) Content() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.VectorResult)+len(r.MemoryResult))
	for _, v := range r.VectorResult {
		parts = append(parts, v.Content)
	}
	for _, m := range r.MemoryResult {
		if m.Memory != "" {
			parts = append(parts, m.Memory)
		}
	}
	return strings.Join(parts, "\n")
}

// Backend 检索后端。
type Backend interface {
	// EnsureCollection 在集合不存在时创建。
	EnsureCollection(ctx context.Context, collection string) error
	// AddDocuments 向集合写入文档。
	AddDocuments(ctx context.Context, collection string, docs []descriptor.Document) error
	// DeleteCollection 删除集合，集合不存在不视为错误。
	DeleteCollection(ctx context.Context, collection string) error
	// Search 在单个集合中检索。
	Search(ctx context.Context, collection string, req SearchRequest) (*SearchResult, error)
}

// MultiResult 多集合检索结果，Results 中失败的集合值为 nil。
type MultiResult struct {
	Results map[string]*SearchResult
	Content string
}

// SearchAll 以有界并发检索多个集合。单个集合失败只记录日志，
// Content 按 collections 的顺序拼接成功结果。
func SearchAll(ctx context.Context, b Backend, collections []string, req SearchRequest, parallelism int) *MultiResult {
	results := make([]*SearchResult, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, c := range collections {
		g.Go(func() error {
			res, err := b.Search(gctx, c, req)
			if err != nil {
				logger.Errorw("Collection search failed", "collection", c, "error", err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := &MultiResult{Results: make(map[string]*SearchResult, len(collections))}
	contents := make([]string, 0, len(collections))
	for i, c := range collections {
		out.Results[c] = results[i]
		if results[i] != nil {
			contents = append(contents, results[i].Content())
		}
	}
	out.Content = strings.Join(contents, "\n")
	return out
}
