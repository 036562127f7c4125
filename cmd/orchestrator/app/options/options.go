// Package options contains flags and options for initializing the orchestrator.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/dataagent/internal/orchestrator"
	"github.com/kart-io/dataagent/pkg/app/cliflag"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	dataservicesopts "github.com/kart-io/dataagent/pkg/options/dataservices"
	dbopts "github.com/kart-io/dataagent/pkg/options/db"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"
	logopts "github.com/kart-io/dataagent/pkg/options/logger"
	orchestratoropts "github.com/kart-io/dataagent/pkg/options/orchestrator"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
	registryopts "github.com/kart-io/dataagent/pkg/options/registry"
	grpcopts "github.com/kart-io/dataagent/pkg/options/server/grpc"
	httpopts "github.com/kart-io/dataagent/pkg/options/server/http"
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
	DataServicesOptions *dataservicesopts.Options `json:"data-services" mapstructure:"data-services"`
	// DBOptions 仅在 orchestrator.history-backend=database 时使用
	DBOptions           *dbopts.Options           `json:"db" mapstructure:"db"`
	OrchestratorOptions *orchestratoropts.Options `json:"orchestrator" mapstructure:"orchestrator"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":20000"

	return &ServerOptions{
		HTTPOptions:         httpOpts,
		GRPCOptions:         grpcopts.NewOptions(),
		LogOptions:          logopts.NewOptions(),
		TracingOptions:      tracing.NewOptions(),
		RedisOptions:        redisopts.NewOptions(),
		RegistryOptions:     registryopts.NewOptions(),
		LLMOptions:          llmopts.NewOptions(),
		DataServicesOptions: dataservicesopts.NewOptions(),
		DBOptions:           dbopts.NewOptions(),
		OrchestratorOptions: orchestratoropts.NewOptions(),
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
	o.DataServicesOptions.AddFlags(fss.FlagSet("data-services"))
	o.DBOptions.AddFlags(fss.FlagSet("db"))
	o.OrchestratorOptions.AddFlags(fss.FlagSet("orchestrator"))

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
	errs = append(errs, o.DataServicesOptions.Validate()...)
	if o.OrchestratorOptions.HistoryBackend == orchestratoropts.HistoryDatabase {
		errs = append(errs, o.DBOptions.Validate()...)
	}
	errs = append(errs, o.OrchestratorOptions.Validate()...)
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds an orchestrator.Config based on ServerOptions.
func (o *ServerOptions) Config() (*orchestrator.Config, error) {
	return &orchestrator.Config{
		HTTPOptions:         o.HTTPOptions,
		GRPCOptions:         o.GRPCOptions,
		LogOptions:          o.LogOptions,
		TracingOptions:      o.TracingOptions,
		RedisOptions:        o.RedisOptions,
		RegistryOptions:     o.RegistryOptions,
		LLMOptions:          o.LLMOptions,
		DataServicesOptions: o.DataServicesOptions,
		DBOptions:           o.DBOptions,
		OrchestratorOptions: o.OrchestratorOptions,
		ShutdownTimeout:     o.ShutdownTimeout,
	}, nil
}
