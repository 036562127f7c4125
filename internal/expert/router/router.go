// Package router registers the expert A2A routes.
package router

import (
	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/expert/handler"
	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/infra/server"
)

// Register 注册 A2A 流式端点与名片端点。
func Register(mgr *server.Manager, h *handler.ExpertHandler, card func() a2a.AgentCard) {
	httpServer := mgr.HTTPServer()
	if httpServer == nil {
		return
	}
	r := httpServer.Engine()
	r.POST("/", a2a.Handler(h.ArtifactName(), h))
	r.GET(a2a.WellKnownCardPath, a2a.CardHandler(card))
	logger.Infow("Expert routes registered", "card", a2a.WellKnownCardPath)
}
