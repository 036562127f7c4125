// Package grpc 提供附带标准健康检查服务的 gRPC 服务器。
package grpc

import (
	"context"
	"net"
	"sync"

	"github.com/kart-io/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
)

// Server is the gRPC server implementation.
type Server struct {
	opts    *grpcopts.Options
	service string
	server  *grpc.Server
	health  *health.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new gRPC server. service 是健康检查中登记的服务名。
func NewServer(service string, opts *grpcopts.Options) *Server {
	if opts == nil {
		opts = grpcopts.NewOptions()
	}

	srv := grpc.NewServer(
		grpc.MaxRecvMsgSize(opts.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(opts.MaxSendMsgSize),
		grpc.ConnectionTimeout(opts.Timeout),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	if opts.EnableReflection {
		reflection.Register(srv)
	}

	return &Server{opts: opts, service: service, server: srv, health: hs}
}

// Name returns the server name.
func (s *Server) Name() string {
	return "grpc"
}

// Server returns the underlying grpc.Server.
func (s *Server) Server() *grpc.Server {
	return s.server
}

// Addr 返回实际监听地址。
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Start 监听端口并把服务状态置为 SERVING。
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(s.service, healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := s.server.Serve(ln); err != nil {
			logger.Errorw("gRPC server exited", "addr", ln.Addr().String(), "error", err.Error())
		}
	}()
	return nil
}

// Stop 先将健康状态置为 NOT_SERVING，再优雅停止；ctx 到期后强制停止。
func (s *Server) Stop(ctx context.Context) error {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-ctx.Done():
		s.server.Stop()
		return ctx.Err()
	case <-done:
		return nil
	}
}
