// Package router registers the ingestor routes.
package router

import (
	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/ingestor/handler"
	"github.com/kart-io/dataagent/pkg/infra/server"
)

// Register 注册入库提交与指纹查询端点。
func Register(mgr *server.Manager, h *handler.IngestHandler) {
	httpServer := mgr.HTTPServer()
	if httpServer == nil {
		return
	}
	v1 := httpServer.Engine().Group("/v1")
	{
		v1.POST("/ingest", h.Submit)
		v1.GET("/fingerprints/:namespace/:name", h.GetFingerprint)
	}
	logger.Info("Ingestor routes registered")
}
