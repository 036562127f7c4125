package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/kart-io/logger"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/dataagent/pkg/infra/server/transport/grpc"
	"github.com/kart-io/dataagent/pkg/infra/server/transport/http"
)

// Manager manages the HTTP/gRPC servers and extra runnables with a unified lifecycle.
// Extra runnables start after the transports and stop before them.
type Manager struct {
	opts       *Options
	httpServer *http.Server
	grpcServer *grpc.Server
	servers    []Runnable
	mu         sync.Mutex
	started    bool
}

// NewManager creates a new server manager with the given options.
func NewManager(opts ...Option) *Manager {
	o := NewOptions()
	for _, opt := range opts {
		opt(o)
	}

	m := &Manager{opts: o}
	if o.HTTP != nil {
		m.httpServer = http.NewServer(o.Name, o.HTTP, o.Metrics)
	}
	if o.GRPC.Enabled() {
		m.grpcServer = grpc.NewServer(o.Name, o.GRPC)
	}
	return m
}

// HTTPServer returns the HTTP server (may be nil if not enabled).
func (m *Manager) HTTPServer() *http.Server {
	return m.httpServer
}

// GRPCServer returns the gRPC server (may be nil if not enabled).
func (m *Manager) GRPCServer() *grpc.Server {
	return m.grpcServer
}

// AddServer adds a custom runnable to the manager.
func (m *Manager) AddServer(server Runnable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers = append(m.servers, server)
}

// Start starts all servers. On failure everything already started is stopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("server manager already started")
	}
	m.started = true
	servers := append([]Runnable(nil), m.servers...)
	m.mu.Unlock()

	var running []Runnable
	rollback := func() {
		for i := len(running) - 1; i >= 0; i-- {
			_ = running[i].Stop(ctx)
		}
	}

	var all []Runnable
	if m.httpServer != nil {
		all = append(all, m.httpServer)
	}
	if m.grpcServer != nil {
		all = append(all, m.grpcServer)
	}
	all = append(all, servers...)

	for _, s := range all {
		if err := s.Start(ctx); err != nil {
			rollback()
			return fmt.Errorf("failed to start %s: %w", s.Name(), err)
		}
		running = append(running, s)
	}

	if m.httpServer != nil {
		logger.Infow("HTTP server started", "addr", m.httpServer.Addr())
	}
	if m.grpcServer != nil {
		logger.Infow("gRPC server started", "addr", m.grpcServer.Addr())
	}
	return nil
}

// Stop stops all servers gracefully, custom runnables first.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	servers := append([]Runnable(nil), m.servers...)
	m.mu.Unlock()

	var errs []error
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", servers[i].Name(), err))
		}
	}
	if m.httpServer != nil {
		if err := m.httpServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
		}
		logger.Info("HTTP server stopped")
	}
	if m.grpcServer != nil {
		if err := m.grpcServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop gRPC server: %w", err))
		}
		logger.Info("gRPC server stopped")
	}
	return utilerrors.NewAggregate(errs)
}

// Run starts all servers, blocks until ctx is done and then shuts down
// within the configured timeout.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout)
	defer cancel()
	return m.Stop(shutdownCtx)
}
