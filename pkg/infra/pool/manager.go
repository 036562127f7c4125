package pool

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Manager 池管理器，按类型持有进程内的命名池。
// 由各服务的 Server 构造并显式传递，不提供全局实例。
type Manager struct {
	mu     sync.RWMutex
	pools  map[Type]*Pool
	closed bool
}

// NewManager 创建新的池管理器
func NewManager() *Manager {
	return &Manager{pools: make(map[Type]*Pool)}
}

// Register 注册新池
func (m *Manager) Register(typ Type, config *Config) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrPoolClosed
	}
	if _, exists := m.pools[typ]; exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolAlreadyExists, typ)
	}

	p, err := NewPool(string(typ), typ, config)
	if err != nil {
		return nil, err
	}
	m.pools[typ] = p
	return p, nil
}

// Get 获取指定类型的池
func (m *Manager) Get(typ Type) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrPoolClosed
	}
	p, exists := m.pools[typ]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, typ)
	}
	return p, nil
}

// GetOrRegister 获取池，不存在时按 config 创建
func (m *Manager) GetOrRegister(typ Type, config *Config) (*Pool, error) {
	if p, err := m.Get(typ); err == nil {
		return p, nil
	}
	p, err := m.Register(typ, config)
	if errors.Is(err, ErrPoolAlreadyExists) {
		// 并发注册时另一方已成功
		return m.Get(typ)
	}
	return p, err
}

// Stats 返回所有池的统计信息
func (m *Manager) Stats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Stats, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, p.Stats())
	}
	return out
}

// ReleaseAll 带超时释放所有池
func (m *Manager) ReleaseAll(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, p := range m.pools {
		_ = p.ReleaseTimeout(timeout)
	}
	m.pools = make(map[Type]*Pool)
}
