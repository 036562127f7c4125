package server

import (
	"time"

	"github.com/kart-io/dataagent/pkg/infra/metrics"
	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
	httpopts "github.com/kart-io/dataagent/pkg/options/server/http"
)

// Options contains all configuration for the server manager.
type Options struct {
	// Name 服务名，用于健康检查和 span 属性。
	Name string
	// HTTP contains HTTP server options, nil disables the HTTP server.
	HTTP *httpopts.Options
	// GRPC contains gRPC server options, an empty address disables it.
	GRPC *grpcopts.Options
	// Metrics 非空时在 HTTP 服务上暴露 /metrics。
	Metrics *metrics.Metrics
	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration
}

// Option is a function that configures Options.
type Option func(*Options)

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		Name:            "dataagent",
		HTTP:            httpopts.NewOptions(),
		GRPC:            grpcopts.NewOptions(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// WithName sets the service name.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithHTTPOptions sets HTTP server options.
func WithHTTPOptions(opts *httpopts.Options) Option {
	return func(o *Options) {
		o.HTTP = opts
	}
}

// WithGRPCOptions sets gRPC server options.
func WithGRPCOptions(opts *grpcopts.Options) Option {
	return func(o *Options) {
		o.GRPC = opts
	}
}

// WithMetrics exposes m on the HTTP server.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ShutdownTimeout = d
		}
	}
}
