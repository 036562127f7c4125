// Package fingerprint provides options for the fingerprint engine.
package fingerprint

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains fingerprint engine settings.
type Options struct {
	MaxCombinedChars int           `json:"max-combined-chars" mapstructure:"max-combined-chars"`
	AgentInfoRetries int           `json:"agent-info-retries" mapstructure:"agent-info-retries"`
	AgentInfoBackoff time.Duration `json:"agent-info-backoff" mapstructure:"agent-info-backoff"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		MaxCombinedChars: 50000,
		AgentInfoRetries: 3,
		AgentInfoBackoff: time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.IntVar(&o.MaxCombinedChars, p+"fingerprint.max-combined-chars", o.MaxCombinedChars, "Upper bound of the text combined from batch summaries.")
	fs.IntVar(&o.AgentInfoRetries, p+"fingerprint.agent-info-retries", o.AgentInfoRetries, "Retries when the agent name/description cannot be parsed.")
	fs.DurationVar(&o.AgentInfoBackoff, p+"fingerprint.agent-info-backoff", o.AgentInfoBackoff, "Delay between agent info retries.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.MaxCombinedChars <= 0 {
		errs = append(errs, fmt.Errorf("fingerprint.max-combined-chars must be positive"))
	}
	if o.AgentInfoRetries < 0 {
		errs = append(errs, fmt.Errorf("fingerprint.agent-info-retries must not be negative"))
	}
	return errs
}
