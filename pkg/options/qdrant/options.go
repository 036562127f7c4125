// Package qdrant provides options for the Qdrant client.
package qdrant

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains Qdrant client configuration.
type Options struct {
	Host      string        `json:"host" mapstructure:"host"`
	Port      int           `json:"port" mapstructure:"port"`
	APIKey    string        `json:"-" mapstructure:"api-key"`
	UseTLS    bool          `json:"use-tls" mapstructure:"use-tls"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	Dimension int           `json:"dimension" mapstructure:"dimension"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Host:      "localhost",
		Port:      6334,
		Timeout:   30 * time.Second,
		Dimension: 768,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Host, p+"qdrant.host", o.Host, "Qdrant gRPC host.")
	fs.IntVar(&o.Port, p+"qdrant.port", o.Port, "Qdrant gRPC port.")
	fs.StringVar(&o.APIKey, p+"qdrant.api-key", o.APIKey, "Qdrant API key.")
	fs.BoolVar(&o.UseTLS, p+"qdrant.use-tls", o.UseTLS, "Use TLS for the Qdrant connection.")
	fs.DurationVar(&o.Timeout, p+"qdrant.timeout", o.Timeout, "Operation timeout.")
	fs.IntVar(&o.Dimension, p+"qdrant.dimension", o.Dimension, "Embedding dimension used when creating collections.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.Host == "" {
		errs = append(errs, fmt.Errorf("qdrant host is required"))
	}
	if o.Port <= 0 {
		errs = append(errs, fmt.Errorf("qdrant port must be positive"))
	}
	if o.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("qdrant dimension must be positive"))
	}
	return errs
}
