//go:build !qdrant

// Package milvus 在 Milvus 上实现检索后端，导入即注册到 retrieval。
package milvus

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/internal/pkg/retrieval"
	milvuscli "github.com/kart-io/dataagent/pkg/component/milvus"
	"github.com/kart-io/dataagent/pkg/llm"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
	"github.com/kart-io/dataagent/pkg/utils/id"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

func init() {
	retrieval.Register(retrievalopts.BackendMilvus, func(ctx context.Context, cfg *retrieval.Config) (retrieval.Backend, func(), error) {
		c, err := milvuscli.New(ctx, cfg.Milvus)
		if err != nil {
			return nil, nil, err
		}
		return New(c, cfg.Embedder), func() { _ = c.Close(context.Background()) }, nil
	})
}

// store 是后端使用的客户端能力。
type store interface {
	EnsureCollection(ctx context.Context, name, description string) error
	Insert(ctx context.Context, collection string, rows []milvuscli.Row) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]milvuscli.Hit, error)
	DropCollection(ctx context.Context, collection string) error
}

// Backend 在 Milvus 上直接存取文档向量，只返回向量命中。
type Backend struct {
	store    store
	embedder llm.EmbeddingProvider
}

var _ retrieval.Backend = (*Backend)(nil)

// New 创建 Milvus 后端。
func New(c *milvuscli.Client, embedder llm.EmbeddingProvider) *Backend {
	return &Backend{store: c, embedder: embedder}
}

func (b *Backend) EnsureCollection(ctx context.Context, collection string) error {
	return b.store.EnsureCollection(ctx, collection, "knowledge of "+collection)
}

func (b *Backend) AddDocuments(ctx context.Context, collection string, docs []descriptor.Document) error {
	vectors, err := retrieval.EmbedDocuments(ctx, b.embedder, docs)
	if err != nil {
		return err
	}
	rows := make([]milvuscli.Row, len(docs))
	for i, d := range docs {
		rows[i] = milvuscli.Row{
			DocID:     id.NewUUID(),
			Embedding: vectors[i],
			Content:   d.PageContent,
			Metadata:  json.MarshalString(d.Metadata),
		}
	}
	if err := b.store.Insert(ctx, collection, rows); err != nil {
		return err
	}
	logger.Infow("Documents published", "collection", collection, "count", len(docs), "backend", "milvus")
	return nil
}

func (b *Backend) DeleteCollection(ctx context.Context, collection string) error {
	return b.store.DropCollection(ctx, collection)
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
		var md map[string]any
		if h.Metadata != "" {
			_ = json.Unmarshal([]byte(h.Metadata), &md)
		}
		out[i] = retrieval.VectorHit{Content: h.Content, Metadata: md, Score: h.Score}
	}
	return retrieval.FilterHits(collection, out, req.HybridThreshold), nil
}
