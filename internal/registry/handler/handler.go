// Package handler exposes the agent directory over HTTP.
package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/internal/pkg/registry"
	"github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/utils/response"
)

// Directory 是目录的进程内镜像。
type Directory interface {
	Cards() []a2a.AgentCard
}

// Store 读写 Redis 中的目录，由 *registry.Registry 实现。
type Store interface {
	Get(ctx context.Context, name string) (*a2a.AgentCard, error)
	Unregister(ctx context.Context, names ...string) error
}

// Ranker 按相关度排序名片。
type Ranker interface {
	Rank(ctx context.Context, query string, cards []a2a.AgentCard, topN int) []registry.Scored
}

// RegistryHandler handles agent directory requests.
type RegistryHandler struct {
	directory Directory
	store     Store
	ranker    Ranker
	topN      int
}

// NewRegistryHandler creates a new RegistryHandler. topN is the default size of a ranking.
func NewRegistryHandler(d Directory, s Store, r Ranker, topN int) *RegistryHandler {
	return &RegistryHandler{directory: d, store: s, ranker: r, topN: topN}
}

// ListResponse 是目录快照。
type ListResponse struct {
	Total  int             `json:"total"`
	Agents []a2a.AgentCard `json:"agents"`
}

// RankRequest 是排序请求。
type RankRequest struct {
	Query string `json:"query" binding:"required"`
	TopN  int    `json:"top_n"`
}

// List returns all agents known to the directory, sorted by name.
func (h *RegistryHandler) List(c *gin.Context) {
	cards := h.directory.Cards()
	if cards == nil {
		cards = []a2a.AgentCard{}
	}
	response.OK(c, ListResponse{Total: len(cards), Agents: cards})
}

// Get returns one agent card.
func (h *RegistryHandler) Get(c *gin.Context) {
	card, err := h.store.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.OK(c, card)
}

// Delete unregisters one agent.
func (h *RegistryHandler) Delete(c *gin.Context) {
	name := c.Param("name")
	if _, err := h.store.Get(c.Request.Context(), name); err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.store.Unregister(c.Request.Context(), name); err != nil {
		response.Fail(c, err)
		return
	}
	logger.Infow("Agent removed via API", "name", name)
	response.OK(c, gin.H{"name": name})
}

// Rank returns the agents most relevant to a query.
func (h *RegistryHandler) Rank(c *gin.Context) {
	var req RankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, errors.ErrInvalidParam.WithCause(err))
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		response.Fail(c, errors.ErrInvalidParam.WithMessage("query must not be empty"))
		return
	}
	topN := req.TopN
	if topN <= 0 {
		topN = h.topN
	}
	ranked := h.ranker.Rank(c.Request.Context(), query, h.directory.Cards(), topN)
	if ranked == nil {
		ranked = []registry.Scored{}
	}
	response.OK(c, ranked)
}
