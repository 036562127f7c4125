package retrieval

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/internal/pkg/descriptor"
	"github.com/kart-io/dataagent/pkg/options/dataservices"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

func newDataServices(t *testing.T, h http.HandlerFunc) *DataServices {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts := dataservices.NewOptions()
	opts.BaseURL = srv.URL
	opts.MaxRetries = 0
	return NewDataServices(NewDataServicesClient(opts))
}

func TestDataServicesSearch(t *testing.T) {
	var body map[string]any
	ds := newDataServices(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/knowledge_pyramid/ns_orders/search", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))
		_, _ = io.WriteString(w, `{
			"status": "success",
			"collection": "ns_orders",
			"search_type": "hybrid",
			"vector_result": [{"content": "orders table", "metadata": {"k": "v"}, "score": 0.8, "hybrid_score": 0.7}],
			"memory_result": [{"id": "m1", "memory": "user likes csv"}, {"id": "m2", "memory": ""}]
		}`)
	})

	res, err := ds.Search(context.Background(), "ns_orders", SearchRequest{
		Query: "q", SearchType: "hybrid", Limit: 10, HybridThreshold: 0.1, MemoryThreshold: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, "q", body["query"])
	assert.Equal(t, "hybrid", body["search_type"])
	assert.EqualValues(t, 10, body["limit"])
	assert.NotContains(t, body, "enable_graph")

	require.Len(t, res.VectorResult, 1)
	assert.InDelta(t, 0.7, res.VectorResult[0].HybridScore, 1e-9)
	assert.Equal(t, "orders table\nuser likes csv", res.Content())
}

func TestDataServicesCollectionLifecycle(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	ds := newDataServices(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"status":"success"}`)
	})

	ctx := context.Background()
	require.NoError(t, ds.EnsureCollection(ctx, "ns_a"))
	require.NoError(t, ds.AddDocuments(ctx, "ns_a", []descriptor.Document{{PageContent: "x"}}))
	require.NoError(t, ds.AddDocuments(ctx, "ns_a", nil))
	require.NoError(t, ds.DeleteCollection(ctx, "ns_a"))

	assert.Equal(t, []string{
		"POST /knowledge_pyramid/create_collection",
		"POST /knowledge_pyramid/ns_a/add_documents",
		"DELETE /knowledge_pyramid/ns_a/delete_all",
	}, calls)
}

type stubBackend struct {
	Backend
	fail map[string]bool
}

func (s *stubBackend) Search(_ context.Context, collection string, _ SearchRequest) (*SearchResult, error) {
	if s.fail[collection] {
		return nil, stderrors.New("down")
	}
	return &SearchResult{Collection: collection, VectorResult: []VectorResult{{Content: "from " + collection}}}, nil
}

func TestSearchAllKeepsOrderAndSkipsFailures(t *testing.T) {
	b := &stubBackend{fail: map[string]bool{"b": true}}

	res := SearchAll(context.Background(), b, []string{"a", "b", "c"}, SearchRequest{Query: "q"}, 2)
	assert.Equal(t, "from a\nfrom c", res.Content)
	assert.Nil(t, res.Results["b"])
	require.NotNil(t, res.Results["c"])
	assert.Len(t, res.Results, 3)
}

func TestFilterHitsAppliesThreshold(t *testing.T) {
	res := FilterHits("c", []VectorHit{
		{Content: "kept", Score: 0.9},
		{Content: "dropped", Score: 0.05},
	}, 0.1)
	require.Len(t, res.VectorResult, 1)
	assert.Equal(t, "kept", res.VectorResult[0].Content)
	assert.InDelta(t, 0.9, res.VectorResult[0].HybridScore, 1e-6)
	assert.Equal(t, "vector", res.SearchType)
}

func TestOpenRejectsBackendNotBuiltIn(t *testing.T) {
	opts := retrievalopts.NewOptions()
	opts.Backend = retrievalopts.BackendQdrant
	_, _, err := Open(context.Background(), &Config{Retrieval: opts})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not built into this binary")
	assert.False(t, Registered(retrievalopts.BackendQdrant))
}

func TestOpenDataServices(t *testing.T) {
	opts := retrievalopts.NewOptions()
	b, closer, err := Open(context.Background(), &Config{Retrieval: opts, DataServices: dataservices.NewOptions()})
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &DataServices{}, b)
}
