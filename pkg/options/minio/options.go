// Package minio provides options for the S3 compatible object store client.
package minio

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/dataagent/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains object store defaults. Descriptors may override every field.
type Options struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	AccessKey string `json:"-" mapstructure:"access-key"`
	SecretKey string `json:"-" mapstructure:"secret-key"`
	UseSSL    bool   `json:"use-ssl" mapstructure:"use-ssl"`
	Region    string `json:"region" mapstructure:"region"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Endpoint: "127.0.0.1:9000",
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Endpoint, p+"minio.endpoint", o.Endpoint, "Object store endpoint (host:port).")
	fs.StringVar(&o.AccessKey, p+"minio.access-key", o.AccessKey, "Object store access key.")
	fs.StringVar(&o.SecretKey, p+"minio.secret-key", o.SecretKey, "Object store secret key.")
	fs.BoolVar(&o.UseSSL, p+"minio.use-ssl", o.UseSSL, "Use TLS for the object store.")
	fs.StringVar(&o.Region, p+"minio.region", o.Region, "Object store region.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Endpoint == "" {
		return []error{fmt.Errorf("minio endpoint is required")}
	}
	return nil
}
