package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/internal/pkg/registry"
	"github.com/kart-io/dataagent/pkg/errors"
	registryopts "github.com/kart-io/dataagent/pkg/options/registry"
	"github.com/kart-io/dataagent/pkg/utils/json"
)

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

func newHandler(t *testing.T) (*gin.Engine, *registry.Registry, *registry.Directory) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg := registry.New(rdb, 0, registryopts.NewOptions())
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, a2a.AgentCard{
		Name:        "SalesAgent",
		Description: "sales orders and revenue",
		URL:         "http://sales.local:20001/",
	}))
	require.NoError(t, reg.Register(ctx, a2a.AgentCard{
		Name:        "HRAgent",
		Description: "employees and payroll",
		URL:         "http://hr.local:20001/",
	}))
	dir := registry.NewDirectory(reg, nil)
	require.NoError(t, dir.Reload(ctx))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewRegistryHandler(dir, reg, registry.NewRanker(nil), 5)
	r.GET("/v1/agents", h.List)
	r.GET("/v1/agents/:name", h.Get)
	r.DELETE("/v1/agents/:name", h.Delete)
	r.POST("/v1/agents/rank", h.Rank)
	return r, reg, dir
}

func do(t *testing.T, r *gin.Engine, method, target, body string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w.Code, env
}

func TestList(t *testing.T) {
	r, _, _ := newHandler(t)

	status, env := do(t, r, http.MethodGet, "/v1/agents", "")
	require.Equal(t, http.StatusOK, status)
	var resp ListResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "HRAgent", resp.Agents[0].Name)
	assert.Equal(t, "SalesAgent", resp.Agents[1].Name)
}

func TestGet(t *testing.T) {
	r, _, _ := newHandler(t)

	status, env := do(t, r, http.MethodGet, "/v1/agents/SalesAgent", "")
	require.Equal(t, http.StatusOK, status)
	var card a2a.AgentCard
	require.NoError(t, json.Unmarshal(env.Data, &card))
	assert.Equal(t, "http://sales.local:20001/", card.URL)

	status, env = do(t, r, http.MethodGet, "/v1/agents/Missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, errors.ErrAgentNotFound.Code, env.Code)
}

func TestDelete(t *testing.T) {
	r, reg, _ := newHandler(t)

	status, _ := do(t, r, http.MethodDelete, "/v1/agents/HRAgent", "")
	require.Equal(t, http.StatusOK, status)
	_, err := reg.Get(context.Background(), "HRAgent")
	assert.ErrorIs(t, err, errors.ErrAgentNotFound)

	status, _ = do(t, r, http.MethodDelete, "/v1/agents/HRAgent", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRank(t *testing.T) {
	r, _, _ := newHandler(t)

	status, env := do(t, r, http.MethodPost, "/v1/agents/rank", `{"query": "monthly sales revenue", "top_n": 1}`)
	require.Equal(t, http.StatusOK, status)
	var ranked []registry.Scored
	require.NoError(t, json.Unmarshal(env.Data, &ranked))
	require.Len(t, ranked, 1)
	assert.Equal(t, "SalesAgent", ranked[0].Card.Name)
	assert.Greater(t, ranked[0].Score, 0.0)

	status, env = do(t, r, http.MethodPost, "/v1/agents/rank", `{"query": "   "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, errors.ErrInvalidParam.Code, env.Code)
}
