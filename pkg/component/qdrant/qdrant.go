// Package qdrant wraps the Qdrant gRPC client for document collections.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	options "github.com/kart-io/dataagent/pkg/options/qdrant"
)

// PayloadContent 是 payload 中保存正文的键。
const PayloadContent = "page_content"

// Client wraps qdrant.Client.
type Client struct {
	client *qdrant.Client
	opts   *options.Options
}

// New creates a Qdrant client. The gRPC connection is established lazily.
func New(opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("qdrant options is nil")
	}
	cfg := &qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		UseTLS: opts.UseTLS,
	}
	if opts.APIKey != "" {
		cfg.APIKey = opts.APIKey
	}
	c, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Client{client: c, opts: opts}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnsureCollection creates a cosine collection sized to the configured dimension.
func (c *Client) EnsureCollection(ctx context.Context, name string) error {
	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	err = c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(c.opts.Dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// DeleteCollection removes the collection; a missing collection is not an error.
func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	exists, err := c.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil
	}
	return c.client.DeleteCollection(ctx, name)
}

// Point is one document to upsert. ID must be a UUID.
type Point struct {
	ID      string
	Vector  []float32
	Content string
	Payload map[string]any
}

// Upsert writes points in batches of 100.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	const batchSize = 100

	for start := 0; start < len(points); start += batchSize {
		end := min(start+batchSize, len(points))
		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			payload := make(map[string]*qdrant.Value, len(p.Payload)+1)
			for k, v := range p.Payload {
				payload[k] = toValue(v)
			}
			payload[PayloadContent] = qdrant.NewValueString(p.Content)
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: payload,
			})
		}
		wait := true
		if _, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         batch,
		}); err != nil {
			return fmt.Errorf("failed to upsert points [%d,%d): %w", start, end, err)
		}
	}
	return nil
}

// Hit is a scored search result.
type Hit struct {
	ID      string
	Score   float32
	Content string
	Payload map[string]any
}

// Search returns the limit nearest points.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Hit, error) {
	l := uint64(limit)
	results, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &l,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, p := range results {
		h := Hit{Score: p.GetScore(), Payload: make(map[string]any, len(p.GetPayload()))}
		if p.GetId() != nil {
			h.ID = p.GetId().GetUuid()
		}
		for k, v := range p.GetPayload() {
			if k == PayloadContent {
				h.Content = v.GetStringValue()
				continue
			}
			h.Payload[k] = fromValue(v)
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func toValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case float32:
		return qdrant.NewValueDouble(float64(val))
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", v))
	}
}

func fromValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	default:
		return nil
	}
}
