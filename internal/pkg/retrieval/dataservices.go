package retrieval

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/httpclient"
)

// DataServices 是 data-services 知识金字塔接口的客户端。
type DataServices struct {
	client *httpclient.Client
}

var _ Backend = (*DataServices)(nil)

// NewDataServices 创建 data-services 后端。
func NewDataServices(client *httpclient.Client) *DataServices {
	return &DataServices{client: client}
}

type createCollectionRequest struct {
	CollectionName string                `json:"collection_name"`
	Documents      []descriptor.Document `json:"documents"`
}

type addDocumentsRequest struct {
	Documents []descriptor.Document `json:"documents"`
}

// EnsureCollection 创建集合。后端对已存在的集合返回成功。
func (d *DataServices) EnsureCollection(ctx context.Context, collection string) error {
	req := createCollectionRequest{CollectionName: collection, Documents: []descriptor.Document{}}
	if err := d.client.PostJSON(ctx, "/knowledge_pyramid/create_collection", req, nil); err != nil {
		return errors.ErrUnavailable.WithCause(err).WithMessagef("create collection %s", collection)
	}
	return nil
}

// AddDocuments 写入文档到知识金字塔（向量库与记忆系统）。
func (d *DataServices) AddDocuments(ctx context.Context, collection string, docs []descriptor.Document) error {
	if len(docs) == 0 {
		return nil
	}
	path := "/knowledge_pyramid/" + url.PathEscape(collection) + "/add_documents"
	if err := d.client.PostJSON(ctx, path, addDocumentsRequest{Documents: docs}, nil); err != nil {
		return errors.ErrUnavailable.WithCause(err).WithMessagef("add documents to %s", collection)
	}
	logger.Infow("Documents published", "collection", collection, "count", len(docs))
	return nil
}

// DeleteCollection 清空集合。
func (d *DataServices) DeleteCollection(ctx context.Context, collection string) error {
	path := "/knowledge_pyramid/" + url.PathEscape(collection) + "/delete_all"
	err := d.client.DoJSON(ctx, http.MethodDelete, path, nil, nil)
	if statusErr, ok := err.(*httpclient.StatusError); ok && statusErr.StatusCode == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return errors.ErrUnavailable.WithCause(err).WithMessagef("delete collection %s", collection)
	}
	return nil
}

// Search 调用 /knowledge_pyramid/{collection}/search。
func (d *DataServices) Search(ctx context.Context, collection string, req SearchRequest) (*SearchResult, error) {
	path := "/knowledge_pyramid/" + url.PathEscape(collection) + "/search"

	var res SearchResult
	if err := d.client.PostJSON(ctx, path, req, &res); err != nil {
		return nil, errors.ErrUnavailable.WithCause(err).WithMessagef("search %s", collection)
	}
	if res.Collection == "" {
		res.Collection = collection
	}
	return &res, nil
}
