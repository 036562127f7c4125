// Package http 提供基于 gin 的 HTTP 服务器。
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	apierrors "github.com/kart-io/dataagent/pkg/errors"
	"github.com/kart-io/dataagent/pkg/infra/metrics"
	options "github.com/kart-io/dataagent/pkg/options/server/http"
	"github.com/kart-io/dataagent/pkg/utils/response"
)

// HealthPath 健康检查路径。
const HealthPath = "/healthz"

// Server is the HTTP server implementation.
type Server struct {
	opts   *options.Options
	engine *gin.Engine
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new HTTP server with the default middleware chain,
// the health endpoint and (when m is not nil) the metrics endpoint.
func NewServer(serviceName string, opts *options.Options, m *metrics.Metrics) *Server {
	if opts == nil {
		opts = options.NewOptions()
	}
	gin.SetMode(opts.Mode)

	// 创建 Gin 引擎（不使用默认中间件）
	engine := gin.New()
	engine.Use(Recovery(), RequestID(), Logger(HealthPath, metrics.Path), Tracing(serviceName))

	engine.GET(HealthPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})
	if m != nil {
		m.Register(engine)
	}
	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrNotFound.WithMessagef("route %s %s not found", c.Request.Method, c.Request.URL.Path))
	})

	return &Server{opts: opts, engine: engine}
}

// Name returns the server name.
func (s *Server) Name() string {
	return "http[gin]"
}

// Engine returns the underlying gin.Engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr 返回实际监听地址，未启动时返回配置地址。
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Start 监听端口并在后台提供服务；监听失败同步返回。
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP server exited", "addr", ln.Addr().String(), "error", err.Error())
		}
	}()
	return nil
}

// Stop stops the HTTP server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
