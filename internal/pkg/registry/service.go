package registry

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/infra/server"
)

// loop 以固定间隔执行 tick，直到 Stop。
type loop struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *loop) start(interval time.Duration, tick func(ctx context.Context)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick(ctx)
			}
		}
	}(l.done)
}

func (l *loop) stop(ctx context.Context) error {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HeartbeatService 为本进程拥有的智能体定期续约，并每 RecoverEvery 次心跳检查一次
// 名片是否仍在目录中，缺失时重新注册。
type HeartbeatService struct {
	reg *Registry

	mu     sync.Mutex
	agents map[string]a2a.AgentCard
	ticks  int

	loop loop
}

var _ server.Runnable = (*HeartbeatService)(nil)

// NewHeartbeatService 创建心跳服务。
func NewHeartbeatService(reg *Registry) *HeartbeatService {
	return &HeartbeatService{reg: reg, agents: make(map[string]a2a.AgentCard)}
}

// Name 实现 server.Runnable。
func (h *HeartbeatService) Name() string { return "registry-heartbeat" }

// Register 注册名片并纳入心跳。
func (h *HeartbeatService) Register(ctx context.Context, card a2a.AgentCard) error {
	if err := h.reg.Register(ctx, card); err != nil {
		return err
	}
	h.mu.Lock()
	h.agents[card.Name] = card
	h.mu.Unlock()
	return nil
}

// Unregister 停止心跳并从目录删除。
func (h *HeartbeatService) Unregister(ctx context.Context, name string) error {
	h.mu.Lock()
	delete(h.agents, name)
	h.mu.Unlock()
	return h.reg.Unregister(ctx, name)
}

// Owned 返回本进程拥有的智能体名称。
func (h *HeartbeatService) Owned() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.agents))
}

// Start 实现 server.Runnable。
func (h *HeartbeatService) Start(context.Context) error {
	h.loop.start(h.reg.opts.HeartbeatInterval, h.Beat)
	logger.Infow("Heartbeat service started", "interval", h.reg.opts.HeartbeatInterval)
	return nil
}

// Stop 停止心跳并注销全部自有智能体。
func (h *HeartbeatService) Stop(ctx context.Context) error {
	err := h.loop.stop(ctx)
	names := h.Owned()
	if uerr := h.reg.Unregister(ctx, names...); uerr != nil {
		logger.Warnw("Failed to unregister agents on shutdown", "names", names, "error", uerr)
	}
	return err
}

// Beat 执行一次心跳。
func (h *HeartbeatService) Beat(ctx context.Context) {
	h.mu.Lock()
	names := slices.Sorted(maps.Keys(h.agents))
	h.ticks++
	recoverNow := h.ticks%h.reg.opts.RecoverEvery == 0
	h.mu.Unlock()

	if len(names) == 0 {
		return
	}
	if recoverNow {
		h.recover(ctx, names)
	}
	if err := h.reg.Heartbeat(ctx, time.Now(), names...); err != nil {
		logger.Errorw("Heartbeat update failed", "error", err)
	}
}

func (h *HeartbeatService) recover(ctx context.Context, names []string) {
	present, err := h.reg.Registered(ctx, names...)
	if err != nil {
		logger.Errorw("Registration check failed", "error", err)
		return
	}
	for i, ok := range present {
		if ok {
			continue
		}
		h.mu.Lock()
		card, owned := h.agents[names[i]]
		h.mu.Unlock()
		if !owned {
			continue
		}
		if err := h.reg.Register(ctx, card); err != nil {
			logger.Errorw("Re-registration failed", "name", card.Name, "error", err)
			continue
		}
		logger.Infow("Agent re-registered after registry loss", "name", card.Name)
	}
}

// CleanupService 定期清除心跳过期的智能体，由目录宿主进程运行。
type CleanupService struct {
	reg       *Registry
	onCleaned func(names []string)
	loop      loop
}

var _ server.Runnable = (*CleanupService)(nil)

// NewCleanupService 创建清理服务，onCleaned 可为 nil。
func NewCleanupService(reg *Registry, onCleaned func(names []string)) *CleanupService {
	return &CleanupService{reg: reg, onCleaned: onCleaned}
}

// Name 实现 server.Runnable。
func (c *CleanupService) Name() string { return "registry-cleanup" }

// Start 实现 server.Runnable。
func (c *CleanupService) Start(context.Context) error {
	c.loop.start(c.reg.opts.CleanupInterval, c.Sweep)
	logger.Infow("Cleanup service started", "interval", c.reg.opts.CleanupInterval, "ttl", c.reg.opts.TTL)
	return nil
}

// Stop 实现 server.Runnable。
func (c *CleanupService) Stop(ctx context.Context) error {
	return c.loop.stop(ctx)
}

// Sweep 执行一次清理。
func (c *CleanupService) Sweep(ctx context.Context) {
	names, err := c.reg.CleanupExpired(ctx, time.Now(), c.reg.opts.TTL)
	if err != nil {
		logger.Errorw("Cleanup expired agents failed", "error", err)
		return
	}
	if len(names) > 0 && c.onCleaned != nil {
		c.onCleaned(names)
	}
}
