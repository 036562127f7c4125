// Package registry 是基于 Redis 的专家智能体目录。
//
// 存储布局：
//
//	expert_agents          hash，name -> AgentCard JSON
//	agent_heartbeats       zset，name -> 最近心跳的 unix 秒
//	expert_agents:{name}   哨兵键，仅用于触发 keyspace 通知
package registry

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/dataagent/internal/pkg/a2a"
	"github.com/kart-io/dataagent/pkg/errors"
	options "github.com/kart-io/dataagent/pkg/options/registry"
	"github.com/kart-io/dataagent/pkg/utils/json"
	"github.com/kart-io/dataagent/pkg/validator"
)

// Registry 专家目录。
type Registry struct {
	rdb  goredis.UniversalClient
	opts *options.Options
	db   int
}

// New 创建目录，db 为 Redis 库编号，用于拼接 keyspace 频道。
func New(rdb goredis.UniversalClient, db int, opts *options.Options) *Registry {
	if opts == nil {
		opts = options.NewOptions()
	}
	return &Registry{rdb: rdb, opts: opts, db: db}
}

// Options 返回目录配置。
func (r *Registry) Options() *options.Options {
	return r.opts
}

func (r *Registry) sentinelKey(name string) string {
	return r.opts.RegistryKey + ":" + name
}

// EnableNotifications 打开服务端 keyspace 通知。托管 Redis 常禁用 CONFIG，失败时需要运维手工开启。
func (r *Registry) EnableNotifications(ctx context.Context) error {
	if err := r.rdb.ConfigSet(ctx, "notify-keyspace-events", "AKE").Err(); err != nil {
		return fmt.Errorf("enable keyspace notifications: %w", err)
	}
	logger.Infow("Redis keyspace notifications enabled", "events", "AKE")
	return nil
}

// Register 写入或覆盖一张名片，同名后写者胜。
func (r *Registry) Register(ctx context.Context, card a2a.AgentCard) error {
	if err := validator.Struct(&card); err != nil {
		return errors.ErrInvalidAgentCard.WithCause(err)
	}
	b, err := json.Marshal(card)
	if err != nil {
		return errors.ErrInvalidAgentCard.WithCause(err)
	}
	payload := string(b)

	now := time.Now().Unix()
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, r.opts.RegistryKey, card.Name, payload)
		pipe.ZAdd(ctx, r.opts.HeartbeatKey, goredis.Z{Score: float64(now), Member: card.Name})
		pipe.Set(ctx, r.sentinelKey(card.Name), "1", 0)
		return nil
	})
	if err != nil {
		return errors.ErrUnavailable.WithCause(err).WithMessagef("register agent %s", card.Name)
	}
	logger.Infow("Agent registered", "name", card.Name, "url", card.URL)
	return nil
}

// Unregister 删除名片、心跳与哨兵键。
func (r *Registry) Unregister(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		r.queueRemove(ctx, pipe, names)
		return nil
	})
	if err != nil {
		return errors.ErrUnavailable.WithCause(err).WithMessage("unregister agents")
	}
	logger.Infow("Agents unregistered", "names", names)
	return nil
}

func (r *Registry) queueRemove(ctx context.Context, pipe goredis.Pipeliner, names []string) {
	members := make([]any, len(names))
	sentinels := make([]string, len(names))
	for i, n := range names {
		members[i] = n
		sentinels[i] = r.sentinelKey(n)
	}
	pipe.HDel(ctx, r.opts.RegistryKey, names...)
	pipe.ZRem(ctx, r.opts.HeartbeatKey, members...)
	pipe.Del(ctx, sentinels...)
}

// Get 返回名称对应的名片。
func (r *Registry) Get(ctx context.Context, name string) (*a2a.AgentCard, error) {
	payload, err := r.rdb.HGet(ctx, r.opts.RegistryKey, name).Result()
	if err == goredis.Nil {
		return nil, errors.ErrAgentNotFound.WithMessagef("agent %s not found", name)
	}
	if err != nil {
		return nil, errors.ErrUnavailable.WithCause(err)
	}
	var card a2a.AgentCard
	if err := json.Unmarshal([]byte(payload), &card); err != nil {
		return nil, errors.ErrParseFailure.WithCause(err).WithMessagef("decode agent %s", name)
	}
	return &card, nil
}

// List 返回全部名片，按名称排序；无法解析的条目被跳过。
func (r *Registry) List(ctx context.Context) ([]a2a.AgentCard, error) {
	all, err := r.rdb.HGetAll(ctx, r.opts.RegistryKey).Result()
	if err != nil {
		return nil, errors.ErrUnavailable.WithCause(err)
	}
	cards := make([]a2a.AgentCard, 0, len(all))
	for name, payload := range all {
		var card a2a.AgentCard
		if err := json.Unmarshal([]byte(payload), &card); err != nil {
			logger.Warnw("Skip undecodable agent card", "name", name, "error", err)
			continue
		}
		cards = append(cards, card)
	}
	slices.SortFunc(cards, func(a, b a2a.AgentCard) int { return strings.Compare(a.Name, b.Name) })
	return cards, nil
}

// Heartbeat 将 names 的心跳时间更新为 now。
func (r *Registry) Heartbeat(ctx context.Context, now time.Time, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	members := make([]goredis.Z, len(names))
	for i, n := range names {
		members[i] = goredis.Z{Score: float64(now.Unix()), Member: n}
	}
	return r.rdb.ZAdd(ctx, r.opts.HeartbeatKey, members...).Err()
}

// Registered 返回 names 中哪些仍在目录中。
func (r *Registry) Registered(ctx context.Context, names ...string) ([]bool, error) {
	cmds := make([]*goredis.BoolCmd, len(names))
	_, err := r.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, n := range names {
			cmds[i] = pipe.HExists(ctx, r.opts.RegistryKey, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(names))
	for i, c := range cmds {
		out[i] = c.Val()
	}
	return out, nil
}

// cleanupAttempts 心跳键被并发修改时 CleanupExpired 的最大尝试次数
const cleanupAttempts = 5

// CleanupExpired 清除心跳早于 now-ttl 的条目，返回被清除的名称。
// 读取与删除在 WATCH 心跳键的事务中完成，期间有心跳写入时整体重试，不会删掉刚续约的专家。
func (r *Registry) CleanupExpired(ctx context.Context, now time.Time, ttl time.Duration) ([]string, error) {
	deadline := now.Add(-ttl).Unix()
	var expired []string
	txf := func(tx *goredis.Tx) error {
		names, err := tx.ZRangeByScore(ctx, r.opts.HeartbeatKey, &goredis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(deadline, 10),
		}).Result()
		if err != nil {
			return err
		}
		expired = names
		if len(names) == 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			r.queueRemove(ctx, pipe, names)
			return nil
		})
		return err
	}

	for range cleanupAttempts {
		err := r.rdb.Watch(ctx, txf, r.opts.HeartbeatKey)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, errors.ErrUnavailable.WithCause(err)
		}
		if len(expired) > 0 {
			logger.Infow("Expired agents cleaned", "count", len(expired), "names", expired)
		}
		return expired, nil
	}
	return nil, errors.ErrUnavailable.WithMessage("heartbeat key kept changing during cleanup")
}
