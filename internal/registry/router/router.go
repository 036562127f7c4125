// Package router registers the registry host routes.
package router

import (
	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/registry/handler"
	"github.com/kart-io/dataagent/pkg/infra/server"
)

// Register 注册目录查询、排序与注销端点。
func Register(mgr *server.Manager, h *handler.RegistryHandler) {
	httpServer := mgr.HTTPServer()
	if httpServer == nil {
		return
	}
	agents := httpServer.Engine().Group("/v1/agents")
	{
		agents.GET("", h.List)
		agents.GET("/:name", h.Get)
		agents.DELETE("/:name", h.Delete)
		agents.POST("/rank", h.Rank)
	}
	logger.Info("Registry routes registered")
}
