// Package ingest provides options for the ingestion coordinator and its queues.
package ingest

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// SQL 文档布局。
const (
	ModeBatch      = "batch"
	ModeDictionary = "dictionary"
	ModeAllInOne   = "allInOne"
)

// Options contains ingestion settings.
type Options struct {
	SQLBatchSize       int    `json:"sql-batch-size" mapstructure:"sql-batch-size"`
	SQLProcessMode     string `json:"sql-process-mode" mapstructure:"sql-process-mode"`
	EnableSampleData   bool   `json:"enable-sample-data" mapstructure:"enable-sample-data"`
	SummaryConcurrency int    `json:"summary-concurrency" mapstructure:"summary-concurrency"`
	// JobTimeout 单个任务的最长执行时间，0 表示不限
	JobTimeout time.Duration `json:"job-timeout" mapstructure:"job-timeout"`

	// Redis Streams 队列，RedisStream 为空时不启用
	RedisStream   string        `json:"redis-stream" mapstructure:"redis-stream"`
	RedisGroup    string        `json:"redis-group" mapstructure:"redis-group"`
	RedisConsumer string        `json:"redis-consumer" mapstructure:"redis-consumer"`
	ClaimIdle     time.Duration `json:"claim-idle" mapstructure:"claim-idle"`
	BlockTimeout  time.Duration `json:"block-timeout" mapstructure:"block-timeout"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		SQLBatchSize:       5,
		SQLProcessMode:     ModeDictionary,
		SummaryConcurrency: 10,
		JobTimeout:         30 * time.Minute,
		RedisGroup:         "ingestor",
		ClaimIdle:          10 * time.Minute,
		BlockTimeout:       5 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.SQLBatchSize, p+"ingest.sql-batch-size", o.SQLBatchSize, "Tables per fingerprint batch, clamped to [1, 100].")
	fs.StringVar(&o.SQLProcessMode, p+"ingest.sql-process-mode", o.SQLProcessMode, "Relational document layout: batch, dictionary or allInOne.")
	fs.BoolVar(&o.EnableSampleData, p+"ingest.enable-sample-data", o.EnableSampleData, "Include sampled rows in published documents.")
	fs.IntVar(&o.SummaryConcurrency, p+"ingest.summary-concurrency", o.SummaryConcurrency, "Concurrent table summary calls in dictionary mode.")
	fs.DurationVar(&o.JobTimeout, p+"ingest.job-timeout", o.JobTimeout, "Deadline of a single ingestion job, 0 means none.")
	fs.StringVar(&o.RedisStream, p+"ingest.redis-stream", o.RedisStream, "Redis stream carrying ingestion jobs, empty disables the consumer.")
	fs.StringVar(&o.RedisGroup, p+"ingest.redis-group", o.RedisGroup, "Redis consumer group.")
	fs.StringVar(&o.RedisConsumer, p+"ingest.redis-consumer", o.RedisConsumer, "Redis consumer name, defaults to the host name.")
	fs.DurationVar(&o.ClaimIdle, p+"ingest.claim-idle", o.ClaimIdle, "Idle time after which pending jobs are reclaimed.")
	fs.DurationVar(&o.BlockTimeout, p+"ingest.block-timeout", o.BlockTimeout, "Blocking read timeout of the redis consumer.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if !slices.Contains([]string{ModeBatch, ModeDictionary, ModeAllInOne}, o.SQLProcessMode) {
		errs = append(errs, fmt.Errorf("unknown ingest.sql-process-mode %q", o.SQLProcessMode))
	}
	if o.SummaryConcurrency < 1 {
		errs = append(errs, fmt.Errorf("ingest.summary-concurrency must be at least 1"))
	}
	if o.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("ingest.job-timeout must not be negative"))
	}
	if o.RedisStream != "" {
		if o.RedisGroup == "" {
			errs = append(errs, fmt.Errorf("ingest.redis-group is required with ingest.redis-stream"))
		}
		if o.ClaimIdle <= 0 || o.BlockTimeout <= 0 {
			errs = append(errs, fmt.Errorf("ingest.claim-idle and ingest.block-timeout must be positive"))
		}
	}
	return errs
}
