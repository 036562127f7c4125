// Package registry provides options for the expert agent registry.
package registry

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains registry settings.
type Options struct {
	RegistryKey       string        `json:"registry-key" mapstructure:"registry-key"`
	HeartbeatKey      string        `json:"heartbeat-key" mapstructure:"heartbeat-key"`
	HeartbeatInterval time.Duration `json:"heartbeat-interval" mapstructure:"heartbeat-interval"`
	RecoverEvery      int           `json:"recover-every" mapstructure:"recover-every"`
	TTL               time.Duration `json:"ttl" mapstructure:"ttl"`
	CleanupInterval   time.Duration `json:"cleanup-interval" mapstructure:"cleanup-interval"`
	// EnableNotifications 启动时执行 CONFIG SET notify-keyspace-events AKE
	EnableNotifications bool `json:"enable-notifications" mapstructure:"enable-notifications"`
	// RankTopN 目录服务排序接口默认返回的数量
	RankTopN int `json:"rank-top-n" mapstructure:"rank-top-n"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		RegistryKey:         "expert_agents",
		HeartbeatKey:        "agent_heartbeats",
		HeartbeatInterval:   10 * time.Second,
		RecoverEvery:        3,
		TTL:                 30 * time.Second,
		CleanupInterval:     60 * time.Second,
		EnableNotifications: true,
		RankTopN:            5,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.RegistryKey, p+"registry.registry-key", o.RegistryKey, "Redis hash holding agent cards.")
	fs.StringVar(&o.HeartbeatKey, p+"registry.heartbeat-key", o.HeartbeatKey, "Redis sorted set holding heartbeat timestamps.")
	fs.DurationVar(&o.HeartbeatInterval, p+"registry.heartbeat-interval", o.HeartbeatInterval, "Interval between heartbeats of locally owned agents.")
	fs.IntVar(&o.RecoverEvery, p+"registry.recover-every", o.RecoverEvery, "Re-register missing agents every N heartbeats.")
	fs.DurationVar(&o.TTL, p+"registry.ttl", o.TTL, "Agents without a heartbeat for this long are purged.")
	fs.DurationVar(&o.CleanupInterval, p+"registry.cleanup-interval", o.CleanupInterval, "Interval between expired agent purges.")
	fs.BoolVar(&o.EnableNotifications, p+"registry.enable-notifications", o.EnableNotifications, "Enable keyspace notifications on the Redis server at startup.")
	fs.IntVar(&o.RankTopN, p+"registry.rank-top-n", o.RankTopN, "Default number of agents returned by the ranking API.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.RegistryKey == "" || o.HeartbeatKey == "" {
		errs = append(errs, fmt.Errorf("registry keys must not be empty"))
	}
	if o.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("registry.heartbeat-interval must be positive"))
	}
	if o.RecoverEvery <= 0 {
		errs = append(errs, fmt.Errorf("registry.recover-every must be positive"))
	}
	if o.TTL <= o.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("registry.ttl must be greater than registry.heartbeat-interval"))
	}
	if o.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("registry.cleanup-interval must be positive"))
	}
	return errs
}
