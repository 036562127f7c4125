// Package source provides options for the data source readers.
package source

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains reader pool and extraction settings.
type Options struct {
	MaxConnections int           `json:"max-connections" mapstructure:"max-connections"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	QueryTimeout   time.Duration `json:"query-timeout" mapstructure:"query-timeout"`
	SampleLimit    int           `json:"sample-limit" mapstructure:"sample-limit"`
	ChunkSize      int           `json:"chunk-size" mapstructure:"chunk-size"`
	ChunkOverlap   int           `json:"chunk-overlap" mapstructure:"chunk-overlap"`
	Include        []string      `json:"include" mapstructure:"include"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		MaxConnections: 5,
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   60 * time.Second,
		SampleLimit:    10,
		ChunkSize:      1000,
		ChunkOverlap:   200,
		Include:        []string{"**"},
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.MaxConnections, p+"source.max-connections", o.MaxConnections, "Maximum open connections per reader.")
	fs.DurationVar(&o.ConnectTimeout, p+"source.connect-timeout", o.ConnectTimeout, "Connect timeout for source databases.")
	fs.DurationVar(&o.QueryTimeout, p+"source.query-timeout", o.QueryTimeout, "Deadline for a single source query.")
	fs.IntVar(&o.SampleLimit, p+"source.sample-limit", o.SampleLimit, "Rows sampled per table.")
	fs.IntVar(&o.ChunkSize, p+"source.chunk-size", o.ChunkSize, "Characters per document chunk.")
	fs.IntVar(&o.ChunkOverlap, p+"source.chunk-overlap", o.ChunkOverlap, "Characters shared by adjacent chunks.")
	fs.StringSliceVar(&o.Include, p+"source.include", o.Include, "Glob patterns of files accepted from object stores and file servers.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("source.max-connections must be at least 1"))
	}
	if o.ConnectTimeout <= 0 || o.QueryTimeout <= 0 {
		errs = append(errs, fmt.Errorf("source timeouts must be positive"))
	}
	if o.ChunkSize <= 0 || o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("source.chunk-overlap must be in [0, chunk-size)"))
	}
	return errs
}
