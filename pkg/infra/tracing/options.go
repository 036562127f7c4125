// Package tracing provides OpenTelemetry tracing setup.
package tracing

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// 导出器类型
const (
	ExporterOTLPGRPC = "otlp_grpc"
	ExporterOTLPHTTP = "otlp_http"
	ExporterStdout   = "stdout"
)

// Options defines configuration for OpenTelemetry tracing.
type Options struct {
	// Enabled enables or disables span export.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// ServiceName is the name of the service.
	ServiceName string `json:"service-name" mapstructure:"service-name"`

	// Environment is the deployment environment.
	Environment string `json:"environment" mapstructure:"environment"`

	// Exporter selects the span exporter: otlp_grpc, otlp_http or stdout.
	Exporter string `json:"exporter" mapstructure:"exporter"`

	// Endpoint is the OTLP endpoint, e.g. "localhost:4317" for gRPC or "localhost:4318" for HTTP.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `json:"insecure" mapstructure:"insecure"`

	// SamplerRatio is the parent-based sampling ratio (0.0 to 1.0).
	SamplerRatio float64 `json:"sampler-ratio" mapstructure:"sampler-ratio"`

	// BatchTimeout is the maximum time to wait before exporting a batch.
	BatchTimeout time.Duration `json:"batch-timeout" mapstructure:"batch-timeout"`
}

// NewOptions creates default tracing options.
func NewOptions() *Options {
	return &Options{
		Enabled:      false,
		ServiceName:  "dataagent",
		Environment:  "development",
		Exporter:     ExporterOTLPGRPC,
		Endpoint:     "localhost:4317",
		Insecure:     true,
		SamplerRatio: 1.0,
		BatchTimeout: 5 * time.Second,
	}
}

// AddFlags adds flags for tracing options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.BoolVar(&o.Enabled, p+"tracing.enabled", o.Enabled, "Enable OpenTelemetry span export.")
	fs.StringVar(&o.ServiceName, p+"tracing.service-name", o.ServiceName, "Service name reported on spans.")
	fs.StringVar(&o.Environment, p+"tracing.environment", o.Environment, "Deployment environment.")
	fs.StringVar(&o.Exporter, p+"tracing.exporter", o.Exporter, "Span exporter (otlp_grpc, otlp_http, stdout).")
	fs.StringVar(&o.Endpoint, p+"tracing.endpoint", o.Endpoint, "OTLP endpoint.")
	fs.BoolVar(&o.Insecure, p+"tracing.insecure", o.Insecure, "Disable TLS for the OTLP connection.")
	fs.Float64Var(&o.SamplerRatio, p+"tracing.sampler-ratio", o.SamplerRatio, "Sampling ratio between 0 and 1.")
	fs.DurationVar(&o.BatchTimeout, p+"tracing.batch-timeout", o.BatchTimeout, "Maximum delay before exporting a batch.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	var errs []error
	switch o.Exporter {
	case ExporterOTLPGRPC, ExporterOTLPHTTP:
		if o.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing endpoint is required for exporter %s", o.Exporter))
		}
	case ExporterStdout:
	default:
		errs = append(errs, fmt.Errorf("invalid tracing exporter %q", o.Exporter))
	}
	if o.SamplerRatio < 0 || o.SamplerRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing sampler ratio must be between 0 and 1, got %v", o.SamplerRatio))
	}
	return errs
}
