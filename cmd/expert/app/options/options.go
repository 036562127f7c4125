// Package options contains flags and options for initializing an expert agent.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/dataagent/internal/expert"
	"github.com/kart-io/dataagent/pkg/app/cliflag"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	dataservicesopts "github.com/kart-io/dataagent/pkg/options/dataservices"
	expertopts "github.com/kart-io/dataagent/pkg/options/expert"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"
	logopts "github.com/kart-io/dataagent/pkg/options/logger"
	milvusopts "github.com/kart-io/dataagent/pkg/options/milvus"
	qdrantopts "github.com/kart-io/dataagent/pkg/options/qdrant"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
	registryopts "github.com/kart-io/dataagent/pkg/options/registry"
	retrievalopts "github.com/kart-io/dataagent/pkg/options/retrieval"
	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
	httpopts "github.com/kart-io/dataagent/pkg/options/server/http"
	sourceopts "github.com/kart-io/dataagent/pkg/options/source"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	HTTPOptions         *httpopts.Options         `json:"http" mapstructure:"http"`
	GRPCOptions         *grpcopts.Options         `json:"grpc" mapstructure:"grpc"`
	LogOptions          *logopts.Options          `json:"log" mapstructure:"log"`
	TracingOptions      *tracing.Options          `json:"tracing" mapstructure:"tracing"`
	RedisOptions        *redisopts.Options        `json:"redis" mapstructure:"redis"`
	RegistryOptions     *registryopts.Options     `json:"registry" mapstructure:"registry"`
	LLMOptions          *llmopts.Options          `json:"llm" mapstructure:"llm"`
	RetrievalOptions    *retrievalopts.Options    `json:"retrieval" mapstructure:"retrieval"`
	DataServicesOptions *dataservicesopts.Options `json:"data-services" mapstructure:"data-services"`
	MilvusOptions       *milvusopts.Options       `json:"milvus" mapstructure:"milvus"`
	QdrantOptions       *qdrantopts.Options       `json:"qdrant" mapstructure:"qdrant"`
	SourceOptions       *sourceopts.Options       `json:"source" mapstructure:"source"`
	ExpertOptions       *expertopts.Options       `json:"expert" mapstructure:"expert"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":20001"

	return &ServerOptions{
		HTTPOptions:         httpOpts,
		GRPCOptions:         grpcopts.NewOptions(),
		LogOptions:          logopts.NewOptions(),
		TracingOptions:      tracing.NewOptions(),
		RedisOptions:        redisopts.NewOptions(),
		RegistryOptions:     registryopts.NewOptions(),
		LLMOptions:          llmopts.NewOptions(),
		RetrievalOptions:    retrievalopts.NewOptions(),
		DataServicesOptions: dataservicesopts.NewOptions(),
		MilvusOptions:       milvusopts.NewOptions(),
		QdrantOptions:       qdrantopts.NewOptions(),
		SourceOptions:       sourceopts.NewOptions(),
		ExpertOptions:       expertopts.NewOptions(),
		ShutdownTimeout:     30 * time.Second,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.GRPCOptions.AddFlags(fss.FlagSet("grpc"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.TracingOptions.AddFlags(fss.FlagSet("tracing"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.RegistryOptions.AddFlags(fss.FlagSet("registry"))
	o.LLMOptions.AddFlags(fss.FlagSet("llm"))
	o.RetrievalOptions.AddFlags(fss.FlagSet("retrieval"))
	o.DataServicesOptions.AddFlags(fss.FlagSet("data-services"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.QdrantOptions.AddFlags(fss.FlagSet("qdrant"))
	o.SourceOptions.AddFlags(fss.FlagSet("source"))
	o.ExpertOptions.AddFlags(fss.FlagSet("expert"))

	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	errs := []error{}

	errs = append(errs, o.HTTPOptions.Validate()...)
	errs = append(errs, o.GRPCOptions.Validate()...)
	errs = append(errs, o.LogOptions.Validate()...)
	errs = append(errs, o.TracingOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.RegistryOptions.Validate()...)
	errs = append(errs, o.LLMOptions.Validate()...)
	errs = append(errs, o.RetrievalOptions.Validate()...)
	errs = append(errs, o.DataServicesOptions.Validate()...)
	switch o.RetrievalOptions.Backend {
	case retrievalopts.BackendMilvus:
		errs = append(errs, o.MilvusOptions.Validate()...)
	case retrievalopts.BackendQdrant:
		errs = append(errs, o.QdrantOptions.Validate()...)
	}
	errs = append(errs, o.SourceOptions.Validate()...)
	errs = append(errs, o.ExpertOptions.Validate()...)
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds an expert.Config based on ServerOptions.
func (o *ServerOptions) Config() (*expert.Config, error) {
	return &expert.Config{
		HTTPOptions:         o.HTTPOptions,
		GRPCOptions:         o.GRPCOptions,
		LogOptions:          o.LogOptions,
		TracingOptions:      o.TracingOptions,
		RedisOptions:        o.RedisOptions,
		RegistryOptions:     o.RegistryOptions,
		LLMOptions:          o.LLMOptions,
		RetrievalOptions:    o.RetrievalOptions,
		DataServicesOptions: o.DataServicesOptions,
		MilvusOptions:       o.MilvusOptions,
		QdrantOptions:       o.QdrantOptions,
		SourceOptions:       o.SourceOptions,
		ExpertOptions:       o.ExpertOptions,
		ShutdownTimeout:     o.ShutdownTimeout,
	}, nil
}
