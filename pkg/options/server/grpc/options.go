// Package grpc provides gRPC server configuration options.
package grpc

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains gRPC server configuration.
// An empty Addr disables the gRPC listener.
type Options struct {
	// Addr is the address to listen on.
	Addr string `json:"addr" mapstructure:"addr"`
	// Timeout is the default timeout for requests.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// MaxRecvMsgSize is the maximum message size in bytes the server can receive.
	MaxRecvMsgSize int `json:"max-recv-msg-size" mapstructure:"max-recv-msg-size"`
	// MaxSendMsgSize is the maximum message size in bytes the server can send.
	MaxSendMsgSize int `json:"max-send-msg-size" mapstructure:"max-send-msg-size"`
	// EnableReflection enables gRPC server reflection for tools like grpcurl.
	EnableReflection bool `json:"enable-reflection" mapstructure:"enable-reflection"`
}

// Option is a function that configures Options.
type Option func(*Options)

// NewOptions creates a new Options with default values.
func NewOptions() *Options {
	return &Options{
		Addr:             "",
		Timeout:          30 * time.Second,
		MaxRecvMsgSize:   16 * 1024 * 1024, // 16MB
		MaxSendMsgSize:   16 * 1024 * 1024, // 16MB
		EnableReflection: true,
	}
}

// Enabled reports whether a gRPC listener is configured.
func (o *Options) Enabled() bool {
	return o != nil && o.Addr != ""
}

// AddFlags adds flags for gRPC options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Addr, p+"grpc.addr", o.Addr, "gRPC server listen address, empty disables the gRPC server")
	fs.DurationVar(&o.Timeout, p+"grpc.timeout", o.Timeout, "gRPC server request timeout")
	fs.IntVar(&o.MaxRecvMsgSize, p+"grpc.max-recv-msg-size", o.MaxRecvMsgSize, "gRPC max receive message size in bytes")
	fs.IntVar(&o.MaxSendMsgSize, p+"grpc.max-send-msg-size", o.MaxSendMsgSize, "gRPC max send message size in bytes")
	fs.BoolVar(&o.EnableReflection, p+"grpc.enable-reflection", o.EnableReflection, "Enable gRPC server reflection")
}

// Validate validates the gRPC options.
func (o *Options) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	var errs []error
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("grpc.timeout must be positive"))
	}
	if o.MaxRecvMsgSize <= 0 {
		errs = append(errs, fmt.Errorf("grpc.max-recv-msg-size must be positive"))
	}
	if o.MaxSendMsgSize <= 0 {
		errs = append(errs, fmt.Errorf("grpc.max-send-msg-size must be positive"))
	}
	return errs
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Options) {
		o.Addr = addr
	}
}

// ApplyOptions applies the given options to the Options.
func (o *Options) ApplyOptions(opts ...Option) {
	for _, opt := range opts {
		opt(o)
	}
}
