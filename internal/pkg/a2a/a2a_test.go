package a2a

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/pkg/utils/httpclient"
)

type executorFunc func(ctx context.Context, req *RequestContext, s *Stream) error

func (f executorFunc) Execute(ctx context.Context, req *RequestContext, s *Stream) error {
	return f(ctx, req, s)
}

func newServer(t *testing.T, exec Executor) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", Handler("expert-result", exec))
	r.GET(WellKnownCardPath, CardHandler(func() AgentCard {
		return AgentCard{Name: "OrdersAgent", URL: "http://localhost/", Capabilities: Capabilities{Streaming: true}}
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestStreamRoundTrip(t *testing.T) {
	var got *RequestContext
	srv := newServer(t, executorFunc(func(_ context.Context, req *RequestContext, s *Stream) error {
		got = req
		assert.NoError(t, s.Artifact("step 1/5"))
		assert.NoError(t, s.Artifact(""))
		assert.NoError(t, s.Artifact("step 2/5"))
		return nil
	}))

	var chunks []string
	err := NewClient(nil).Stream(context.Background(), srv.URL+"/", "how many orders", map[string]any{
		"user_id": "u1",
		"tasks":   []string{"a"},
	}, func(text string) error {
		chunks = append(chunks, text)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"step 1/5", "step 2/5"}, chunks)
	require.NotNil(t, got)
	assert.Equal(t, "how many orders", got.Query)
	assert.Equal(t, "u1", MetaString(got.Metadata, "user_id"))
	assert.Equal(t, `["a"]`, MetaString(got.Metadata, "tasks"))
	assert.Empty(t, MetaString(got.Metadata, "missing"))
}

func TestStreamFailure(t *testing.T) {
	srv := newServer(t, executorFunc(func(_ context.Context, _ *RequestContext, s *Stream) error {
		_ = s.Artifact("partial")
		return errors.New("database unreachable")
	}))

	var chunks []string
	err := NewClient(nil).Stream(context.Background(), srv.URL+"/", "q", nil, func(text string) error {
		chunks = append(chunks, text)
		return nil
	})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "database unreachable")
	assert.Equal(t, []string{"partial"}, chunks)
}

func TestStreamCallbackStops(t *testing.T) {
	srv := newServer(t, executorFunc(func(_ context.Context, _ *RequestContext, s *Stream) error {
		_ = s.Artifact("one")
		_ = s.Artifact("two")
		return nil
	}))

	stop := errors.New("stop")
	var n int
	err := NewClient(nil).Stream(context.Background(), srv.URL+"/", "q", nil, func(string) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestHandlerRejectsInvalidRequests(t *testing.T) {
	srv := newServer(t, executorFunc(func(context.Context, *RequestContext, *Stream) error {
		t.Error("executor must not run")
		return nil
	}))
	hc := httpclient.NewClient(nil)

	req := NewRequest("q", nil)
	req.Method = "tasks/get"
	_, err := hc.Stream(context.Background(), srv.URL+"/", req, nil)
	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)

	req = NewRequest("q", nil)
	req.Params.Message.Parts = nil
	_, err = hc.Stream(context.Background(), srv.URL+"/", req, nil)
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Body, "parts")
}

func TestCard(t *testing.T) {
	srv := newServer(t, executorFunc(func(context.Context, *RequestContext, *Stream) error { return nil }))

	card, err := NewClient(nil).Card(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "OrdersAgent", card.Name)
	assert.True(t, card.Capabilities.Streaming)
}

func TestAgentCardSearchText(t *testing.T) {
	card := AgentCard{
		Name:        "OrdersAgent",
		Description: "orders analytics",
		Skills:      []Skill{{Name: "sales", Description: "monthly sales", Tags: []string{"sql"}, Examples: []string{"top products"}}},
	}
	assert.Equal(t, "OrdersAgent: orders analytics\nsales monthly sales sql\ntop products", card.SearchText())
}
