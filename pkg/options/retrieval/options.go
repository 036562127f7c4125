// Package retrieval provides options for knowledge retrieval.
package retrieval

import (
	"fmt"
	"slices"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 支持的检索后端。
const (
	BackendDataServices = "data-services"
	BackendMilvus       = "milvus"
	BackendQdrant       = "qdrant"
)

// Options contains retrieval settings.
type Options struct {
	Backend         string  `json:"backend" mapstructure:"backend"`
	SearchType      string  `json:"search-type" mapstructure:"search-type"`
	Limit           int     `json:"limit" mapstructure:"limit"`
	HybridThreshold float64 `json:"hybrid-threshold" mapstructure:"hybrid-threshold"`
	MemoryThreshold float64 `json:"memory-threshold" mapstructure:"memory-threshold"`
	EnableGraph     bool    `json:"enable-graph" mapstructure:"enable-graph"`
	Parallelism     int     `json:"parallelism" mapstructure:"parallelism"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Backend:         BackendDataServices,
		SearchType:      "hybrid",
		Limit:           10,
		HybridThreshold: 0.1,
		MemoryThreshold: 0.1,
		Parallelism:     4,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Backend, p+"retrieval.backend", o.Backend, "Retrieval backend: data-services, milvus or qdrant.")
	fs.StringVar(&o.SearchType, p+"retrieval.search-type", o.SearchType, "Search type: vector, fulltext or hybrid.")
	fs.IntVar(&o.Limit, p+"retrieval.limit", o.Limit, "Documents returned per collection.")
	fs.Float64Var(&o.HybridThreshold, p+"retrieval.hybrid-threshold", o.HybridThreshold, "Minimum weighted score of a document hit.")
	fs.Float64Var(&o.MemoryThreshold, p+"retrieval.memory-threshold", o.MemoryThreshold, "Minimum score of a memory hit.")
	fs.BoolVar(&o.EnableGraph, p+"retrieval.enable-graph", o.EnableGraph, "Ask the backend to consult its graph store.")
	fs.IntVar(&o.Parallelism, p+"retrieval.parallelism", o.Parallelism, "Collections searched concurrently.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if !slices.Contains([]string{BackendDataServices, BackendMilvus, BackendQdrant}, o.Backend) {
		errs = append(errs, fmt.Errorf("unknown retrieval backend %q", o.Backend))
	}
	if !slices.Contains([]string{"vector", "fulltext", "hybrid"}, o.SearchType) {
		errs = append(errs, fmt.Errorf("unknown retrieval search-type %q", o.SearchType))
	}
	if o.Limit <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.limit must be positive"))
	}
	if o.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.parallelism must be positive"))
	}
	return errs
}
