// Package dataservices provides options for the external retrieval and
// session backend reached over HTTP.
package dataservices

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains the data-services endpoint configuration.
type Options struct {
	BaseURL    string        `json:"base-url" mapstructure:"base-url"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max-retries" mapstructure:"max-retries"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		BaseURL:    "http://127.0.0.1:8000",
		Timeout:    300 * time.Second,
		MaxRetries: 2,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.BaseURL, p+"data-services.base-url", o.BaseURL, "Base URL of the retrieval and session backend.")
	fs.DurationVar(&o.Timeout, p+"data-services.timeout", o.Timeout, "Request deadline for data-services calls.")
	fs.IntVar(&o.MaxRetries, p+"data-services.max-retries", o.MaxRetries, "Retries for 5xx and network failures.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if _, err := url.ParseRequestURI(o.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("data-services base-url %q: %w", o.BaseURL, err))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("data-services timeout must be positive"))
	}
	return errs
}
