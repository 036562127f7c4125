package registry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
)

// EventType 目录变更类型。
type EventType string

const (
	EventAdd    EventType = "add"
	EventRemove EventType = "remove"
)

// Event 一次目录变更，Remove 事件不携带名片。
type Event struct {
	Type EventType
	Name string
	Card *a2a.AgentCard
}

const (
	minWatchBackoff = time.Second
	maxWatchBackoff = 30 * time.Second
)

func (r *Registry) keyspacePattern() string {
	return fmt.Sprintf("__keyspace@%d__:%s:*", r.db, r.opts.RegistryKey)
}

// parseChannel 从 "__keyspace@0__:expert_agents:{name}" 中取出 name。
func (r *Registry) parseChannel(channel string) (string, bool) {
	prefix := fmt.Sprintf("__keyspace@%d__:%s:", r.db, r.opts.RegistryKey)
	name, ok := strings.CutPrefix(channel, prefix)
	return name, ok && name != ""
}

// Watch 订阅哨兵键的 keyspace 通知并回调 fn，直到 ctx 结束。
// 订阅断开后以 1s 起、翻倍至 30s 的退避重连。
func (r *Registry) Watch(ctx context.Context, fn func(Event)) {
	backoff := minWatchBackoff
	for {
		err := r.watchOnce(ctx, fn, func() { backoff = minWatchBackoff })
		if ctx.Err() != nil {
			return
		}
		logger.Warnw("Registry watch interrupted, reconnecting", "error", err, "backoff", backoff)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff = min(backoff*2, maxWatchBackoff)
	}
}

func (r *Registry) watchOnce(ctx context.Context, fn func(Event), connected func()) error {
	ps := r.rdb.PSubscribe(ctx, r.keyspacePattern())
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	connected()
	logger.Infow("Registry watch subscribed", "pattern", r.keyspacePattern())

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("pubsub channel closed")
			}
			name, ok := r.parseChannel(msg.Channel)
			if !ok {
				continue
			}

			var ev Event
			switch msg.Payload {
			case "set":
				card, err := r.Get(ctx, name)
				if err != nil {
					logger.Warnw("Agent added but card unavailable", "name", name, "error", err)
					continue
				}
				ev = Event{Type: EventAdd, Name: name, Card: card}
			case "del":
				ev = Event{Type: EventRemove, Name: name}
			default:
				continue
			}
			fn(ev)
		}
	}
}
