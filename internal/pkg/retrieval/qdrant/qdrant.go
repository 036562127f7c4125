//go:build qdrant

// Package qdrant 在 Qdrant 上实现检索后端，导入即注册到 retrieval。
// 只在 -tags qdrant 构建中可用。
package qdrant

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	qdrantcli "github.com/kart-io/dataagent/pkg/component/qdrant"
	"github.com/kart-io/dataagent/pkg/llm"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
	"github.com/kart-io/dataagent/pkg/utils/id"
)

func init() {
	retrieval.Register(retrievalopts.BackendQdrant, func(_ context.Context, cfg *retrieval.Config) (retrieval.Backend, func(), error) {
		c, err := qdrantcli.New(cfg.Qdrant)
		if err != nil {
			return nil, nil, err
		}
		return New(c, cfg.Embedder), func() { _ = c.Close() }, nil
	})
}

// store 是后端使用的客户端能力。
type store interface {
	EnsureCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []qdrantcli.Point) error
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]qdrantcli.Hit, error)
	DeleteCollection(ctx context.Context, name string) error
}

// Backend 在 Qdrant 上直接存取文档向量，只返回向量命中。
type Backend struct {
	store    store
	embedder llm.EmbeddingProvider
}

var _ retrieval.Backend = (*Backend)(nil)

// New 创建 Qdrant 后端。
func New(c *qdrantcli.Client, embedder llm.EmbeddingProvider) *Backend {
	return &Backend{store: c, embedder: embedder}
}

func (b *Backend) EnsureCollection(ctx context.Context, collection string) error {
	return b.store.EnsureCollection(ctx, collection)
}

func (b *Backend) AddDocuments(ctx context.Context, collection string, docs []descriptor.Document) error {
	vectors, err := retrieval.EmbedDocuments(ctx, b.embedder, docs)
	if err != nil {
		return err
	}
	points := make([]qdrantcli.Point, len(docs))
	for i, d := range docs {
		points[i] = qdrantcli.Point{
			ID:      id.NewUUID(),
			Vector:  vectors[i],
			Content: d.PageContent,
			Payload: d.Metadata,
		}
	}
	if err := b.store.Upsert(ctx, collection, points); err != nil {
		return err
	}
	logger.Infow("Documents published", "collection", collection, "count", len(docs), "backend", "qdrant")
	return nil
}

func (b *Backend) DeleteCollection(ctx context.Context, collection string) error {
	return b.store.DeleteCollection(ctx, collection)
}

func (b *Backend) Search(ctx context.Context, collection string, req retrieval.SearchRequest) (*retrieval.SearchResult, error) {
	vec, err := b.embedder.EmbedSingle(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := b.store.Search(ctx, collection, vec, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.VectorHit, len(hits))
	for i, h := range hits {
		out[i] = retrieval.VectorHit{Content: h.Content, Metadata: h.Payload, Score: h.Score}
	}
	return retrieval.FilterHits(collection, out, req.HybridThreshold), nil
}
