package bootstrap

import (
	"context"

	"github.com/kart-io/dataagent/pkg/infra/tracing"
)

// TracingInitializer 安装 OpenTelemetry TracerProvider。
type TracingInitializer struct {
	opts     *tracing.Options
	provider *tracing.Provider
}

// NewTracingInitializer creates a new TracingInitializer.
func NewTracingInitializer(opts *tracing.Options) *TracingInitializer {
	return &TracingInitializer{opts: opts}
}

func (ti *TracingInitializer) Name() string           { return "tracing" }
func (ti *TracingInitializer) Dependencies() []string { return []string{LoggingName} }

func (ti *TracingInitializer) Initialize(ctx context.Context) error {
	p, err := tracing.NewProvider(ctx, ti.opts)
	if err != nil {
		return err
	}
	ti.provider = p
	return nil
}

func (ti *TracingInitializer) Shutdown(ctx context.Context) error {
	if ti.provider == nil {
		return nil
	}
	return ti.provider.Shutdown(ctx)
}
