// Package options contains flags and options for initializing the ingestor.
package options

import (
	"fmt"
	"time"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kart-io/dataagent/internal/ingestor"
	"github.com/kart-io/dataagent/pkg/app/cliflag"
	"github.com/kart-io/dataagent/pkg/infra/tracing"
	dataservicesopts "github.com/kart-io/dataagent/pkg/options/dataservices"
	dbopts "github.com/kart-io/dataagent/pkg/options/db"
	fpopts "github.com/kart-io/dataagent/pkg/options/fingerprint"
	ingestopts "github.com/kart-io/dataagent/pkg/options/ingest"
	llmopts "github.com/kart-io/dataagent/pkg/options/llm"
	logopts "github.com/kart-io/dataagent/pkg/options/logger"
	milvusopts "github.com/kart-io/dataagent/pkg/options/milvus"
	natsopts "github.com/kart-io/dataagent/pkg/options/nats"
	qdrantopts "github.com/kart-io/dataagent/pkg/options/qdrant"
	redisopts "github.com/kart-io/dataagent/pkg/options/redis"
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
	LLMOptions          *llmopts.Options          `json:"llm" mapstructure:"llm"`
	RetrievalOptions    *retrievalopts.Options    `json:"retrieval" mapstructure:"retrieval"`
	DataServicesOptions *dataservicesopts.Options `json:"data-services" mapstructure:"data-services"`
	MilvusOptions       *milvusopts.Options       `json:"milvus" mapstructure:"milvus"`
	QdrantOptions       *qdrantopts.Options       `json:"qdrant" mapstructure:"qdrant"`
	DBOptions           *dbopts.Options           `json:"db" mapstructure:"db"`
	SourceOptions       *sourceopts.Options       `json:"source" mapstructure:"source"`
	FingerprintOptions  *fpopts.Options           `json:"fingerprint" mapstructure:"fingerprint"`
	NATSOptions         *natsopts.Options         `json:"nats" mapstructure:"nats"`
	IngestOptions       *ingestopts.Options       `json:"ingest" mapstructure:"ingest"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	httpOpts := httpopts.NewOptions()
	httpOpts.Addr = ":20020"

	return &ServerOptions{
		HTTPOptions:         httpOpts,
		GRPCOptions:         grpcopts.NewOptions(),
		LogOptions:          logopts.NewOptions(),
		TracingOptions:      tracing.NewOptions(),
		RedisOptions:        redisopts.NewOptions(),
		LLMOptions:          llmopts.NewOptions(),
		RetrievalOptions:    retrievalopts.NewOptions(),
		DataServicesOptions: dataservicesopts.NewOptions(),
		MilvusOptions:       milvusopts.NewOptions(),
		QdrantOptions:       qdrantopts.NewOptions(),
		DBOptions:           dbopts.NewOptions(),
		SourceOptions:       sourceopts.NewOptions(),
		FingerprintOptions:  fpopts.NewOptions(),
		NATSOptions:         natsopts.NewOptions(),
		IngestOptions:       ingestopts.NewOptions(),
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
	o.LLMOptions.AddFlags(fss.FlagSet("llm"))
	o.RetrievalOptions.AddFlags(fss.FlagSet("retrieval"))
	o.DataServicesOptions.AddFlags(fss.FlagSet("data-services"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.QdrantOptions.AddFlags(fss.FlagSet("qdrant"))
	o.DBOptions.AddFlags(fss.FlagSet("db"))
	o.SourceOptions.AddFlags(fss.FlagSet("source"))
	o.FingerprintOptions.AddFlags(fss.FlagSet("fingerprint"))
	o.NATSOptions.AddFlags(fss.FlagSet("nats"))
	o.IngestOptions.AddFlags(fss.FlagSet("ingest"))

	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if o.NATSOptions.Name == "" {
		o.NATSOptions.Name = ingestor.Name
	}
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
	errs = append(errs, o.LLMOptions.Validate()...)
	errs = append(errs, o.RetrievalOptions.Validate()...)
	errs = append(errs, o.DataServicesOptions.Validate()...)
	switch o.RetrievalOptions.Backend {
	case retrievalopts.BackendMilvus:
		errs = append(errs, o.MilvusOptions.Validate()...)
	case retrievalopts.BackendQdrant:
		errs = append(errs, o.QdrantOptions.Validate()...)
	}
	errs = append(errs, o.DBOptions.Validate()...)
	errs = append(errs, o.SourceOptions.Validate()...)
	errs = append(errs, o.FingerprintOptions.Validate()...)
	errs = append(errs, o.NATSOptions.Validate()...)
	errs = append(errs, o.IngestOptions.Validate()...)
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return utilerrors.NewAggregate(errs)
}

// Config builds an ingestor.Config based on ServerOptions.
func (o *ServerOptions) Config() (*ingestor.Config, error) {
	return &ingestor.Config{
		HTTPOptions:         o.HTTPOptions,
		GRPCOptions:         o.GRPCOptions,
		LogOptions:          o.LogOptions,
		TracingOptions:      o.TracingOptions,
		RedisOptions:        o.RedisOptions,
		LLMOptions:          o.LLMOptions,
		RetrievalOptions:    o.RetrievalOptions,
		DataServicesOptions: o.DataServicesOptions,
		MilvusOptions:       o.MilvusOptions,
		QdrantOptions:       o.QdrantOptions,
		DBOptions:           o.DBOptions,
		SourceOptions:       o.SourceOptions,
		FingerprintOptions:  o.FingerprintOptions,
		NATSOptions:         o.NATSOptions,
		IngestOptions:       o.IngestOptions,
		ShutdownTimeout:     o.ShutdownTimeout,
	}, nil
}
