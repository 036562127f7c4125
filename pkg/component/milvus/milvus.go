// Package milvus wraps the Milvus v2 SDK for document collections:
// each row holds an embedding, the page content and JSON encoded metadata.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/dataagent/pkg/options/milvus"
)

// 集合字段名
const (
	FieldID        = "id"
	FieldEmbedding = "embedding"
	FieldDocID     = "doc_id"
	FieldContent   = "content"
	FieldMetadata  = "metadata"

	maxVarChar = 65535
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{client: c, opts: opts}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// Dimension 返回配置的向量维度。
func (c *Client) Dimension() int {
	return c.opts.Dimension
}

// HasCollection reports whether the collection exists.
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	return c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
}

// EnsureCollection creates, indexes and loads the document collection when absent.
func (c *Client) EnsureCollection(ctx context.Context, name, description string) error {
	exists, err := c.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	schema := entity.NewSchema().
		WithName(name).
		WithDescription(description).
		WithAutoID(true).
		WithField(entity.NewField().
			WithName(FieldID).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(c.opts.Dimension))).
		WithField(entity.NewField().
			WithName(FieldDocID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64)).
		WithField(entity.NewField().
			WithName(FieldContent).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxVarChar)).
		WithField(entity.NewField().
			WithName(FieldMetadata).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxVarChar))

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, 128)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldEmbedding, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Row is one document to insert.
type Row struct {
	DocID     string
	Embedding []float32
	Content   string
	// Metadata 已编码为 JSON 字符串
	Metadata string
}

// Insert inserts rows and flushes so they are immediately searchable.
func (c *Client) Insert(ctx context.Context, collection string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	embeddings := make([][]float32, len(rows))
	docIDs := make([]string, len(rows))
	contents := make([]string, len(rows))
	metas := make([]string, len(rows))
	for i, r := range rows {
		embeddings[i] = r.Embedding
		docIDs[i] = r.DocID
		contents[i] = truncate(r.Content, maxVarChar)
		metas[i] = truncate(r.Metadata, maxVarChar)
	}

	_, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(collection,
		column.NewColumnFloatVector(FieldEmbedding, len(embeddings[0]), embeddings),
		column.NewColumnVarChar(FieldDocID, docIDs),
		column.NewColumnVarChar(FieldContent, contents),
		column.NewColumnVarChar(FieldMetadata, metas),
	))
	if err != nil {
		return fmt.Errorf("failed to insert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// Hit represents a single search result.
type Hit struct {
	DocID    string
	Content  string
	Metadata string
	Score    float32
}

// Search performs a vector similarity search.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Hit, error) {
	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(collection))
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		collection,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(FieldEmbedding).
		WithSearchParam("nprobe", strconv.Itoa(c.opts.NProbe)).
		WithOutputFields(FieldDocID, FieldContent, FieldMetadata))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	hits := make([]Hit, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hits[i].Score = rs.Scores[i]
	}
	for _, field := range rs.Fields {
		col, ok := field.(*column.ColumnVarChar)
		if !ok {
			continue
		}
		data := col.Data()
		for i := 0; i < rs.ResultCount && i < len(data); i++ {
			switch col.Name() {
			case FieldDocID:
				hits[i].DocID = data[i]
			case FieldContent:
				hits[i].Content = data[i]
			case FieldMetadata:
				hits[i].Metadata = data[i]
			}
		}
	}
	return hits, nil
}

// DropCollection drops a collection; a missing collection is not an error.
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	exists, err := c.HasCollection(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collection)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// 按字节截断后回退到合法的 UTF-8 边界
	for n > 0 && (s[n]&0xC0) == 0x80 {
		n--
	}
	return s[:n]
}
