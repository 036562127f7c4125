package registry

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/infra/server"
)

// Directory 是目录的进程内镜像：启动时全量加载，之后由 keyspace 通知增量维护。
// Watch 回调经无缓冲 channel 交给单个 reconciler goroutine 串行应用。
type Directory struct {
	reg      *Registry
	onChange func(Event)

	mu    sync.RWMutex
	cards map[string]a2a.AgentCard

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ server.Runnable = (*Directory)(nil)

// NewDirectory 创建目录镜像，onChange 在每次变更应用后调用，可为 nil。
func NewDirectory(reg *Registry, onChange func(Event)) *Directory {
	return &Directory{reg: reg, onChange: onChange, cards: make(map[string]a2a.AgentCard)}
}

// Name 实现 server.Runnable。
func (d *Directory) Name() string { return "registry-directory" }

// Start 加载当前目录并开始监听变更。
func (d *Directory) Start(ctx context.Context) error {
	if err := d.Reload(ctx); err != nil {
		return err
	}

	wctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	events := make(chan Event)

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		defer close(events)
		d.reg.Watch(wctx, func(ev Event) {
			select {
			case events <- ev:
			case <-wctx.Done():
			}
		})
	}()
	go func() {
		defer d.wg.Done()
		for ev := range events {
			d.Apply(ev)
		}
	}()
	return nil
}

// Stop 实现 server.Runnable。
func (d *Directory) Stop(ctx context.Context) error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload 以 Redis 中的全量数据替换镜像。
func (d *Directory) Reload(ctx context.Context) error {
	cards, err := d.reg.List(ctx)
	if err != nil {
		return err
	}
	m := make(map[string]a2a.AgentCard, len(cards))
	for _, c := range cards {
		m[c.Name] = c
	}
	d.mu.Lock()
	d.cards = m
	d.mu.Unlock()
	logger.Infow("Loaded agents from registry", "count", len(cards))
	return nil
}

// Apply 应用一次变更。
func (d *Directory) Apply(ev Event) {
	d.mu.Lock()
	switch ev.Type {
	case EventAdd:
		if ev.Card != nil {
			d.cards[ev.Name] = *ev.Card
		}
	case EventRemove:
		delete(d.cards, ev.Name)
	}
	d.mu.Unlock()

	logger.Infow("Registry changed", "event", ev.Type, "name", ev.Name)
	if d.onChange != nil {
		d.onChange(ev)
	}
}

// Cards 返回按名称排序的名片快照。
func (d *Directory) Cards() []a2a.AgentCard {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cards := slices.Collect(maps.Values(d.cards))
	slices.SortFunc(cards, func(a, b a2a.AgentCard) int { return strings.Compare(a.Name, b.Name) })
	return cards
}

// Len 返回镜像中的智能体数量。
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cards)
}
