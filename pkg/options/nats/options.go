// Package nats provides options for the NATS JetStream connection.
package nats

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains NATS connection and consumer configuration.
type Options struct {
	URL           string        `json:"url" mapstructure:"url"`
	Name          string        `json:"name" mapstructure:"name"`
	Stream        string        `json:"stream" mapstructure:"stream"`
	Subject       string        `json:"subject" mapstructure:"subject"`
	Durable       string        `json:"durable" mapstructure:"durable"`
	AckWait       time.Duration `json:"ack-wait" mapstructure:"ack-wait"`
	MaxDeliver    int           `json:"max-deliver" mapstructure:"max-deliver"`
	NakDelay      time.Duration `json:"nak-delay" mapstructure:"nak-delay"`
	ReconnectWait time.Duration `json:"reconnect-wait" mapstructure:"reconnect-wait"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		URL:           "nats://127.0.0.1:4222",
		Name:          "dataagent",
		Stream:        "DATAAGENT_INGEST",
		Subject:       "dataagent.ingest",
		Durable:       "ingestor",
		AckWait:       10 * time.Minute,
		MaxDeliver:    5,
		NakDelay:      30 * time.Second,
		ReconnectWait: 2 * time.Second,
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.URL, p+"nats.url", o.URL, "NATS server URL, empty disables the JetStream consumer.")
	fs.StringVar(&o.Name, p+"nats.name", o.Name, "NATS connection name.")
	fs.StringVar(&o.Stream, p+"nats.stream", o.Stream, "JetStream stream name.")
	fs.StringVar(&o.Subject, p+"nats.subject", o.Subject, "Subject carrying ingestion jobs.")
	fs.StringVar(&o.Durable, p+"nats.durable", o.Durable, "Durable consumer name.")
	fs.DurationVar(&o.AckWait, p+"nats.ack-wait", o.AckWait, "Time a job may run before redelivery.")
	fs.IntVar(&o.MaxDeliver, p+"nats.max-deliver", o.MaxDeliver, "Maximum deliveries per job.")
	fs.DurationVar(&o.NakDelay, p+"nats.nak-delay", o.NakDelay, "Redelivery delay after a failed job.")
	fs.DurationVar(&o.ReconnectWait, p+"nats.reconnect-wait", o.ReconnectWait, "Wait between reconnect attempts.")
}

// Enabled reports whether a NATS URL is configured.
func (o *Options) Enabled() bool {
	return o != nil && o.URL != ""
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if !o.Enabled() {
		return nil
	}
	var errs []error
	if o.Stream == "" || o.Subject == "" || o.Durable == "" {
		errs = append(errs, fmt.Errorf("nats stream, subject and durable are required"))
	}
	if o.AckWait <= 0 {
		errs = append(errs, fmt.Errorf("nats ack-wait must be positive"))
	}
	return errs
}
