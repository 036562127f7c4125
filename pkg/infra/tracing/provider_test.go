package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderWithoutExport(t *testing.T) {
	p, err := NewProvider(context.Background(), NewOptions())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	assert.Empty(t, TraceIDFromContext(context.Background()))

	ctx, span := StartSpan(context.Background(), "test", "op")
	defer span.End()
	assert.Len(t, TraceIDFromContext(ctx), 32)
}

func TestValidate(t *testing.T) {
	o := NewOptions()
	assert.Empty(t, o.Validate())

	o.Enabled = true
	o.Endpoint = ""
	o.SamplerRatio = 2
	assert.Len(t, o.Validate(), 2)

	o.SamplerRatio = 1
	o.Exporter = ExporterStdout
	assert.Empty(t, o.Validate())

	o.Exporter = "zipkin"
	assert.Len(t, o.Validate(), 1)
}

func TestProviderWithStdoutExporter(t *testing.T) {
	o := NewOptions()
	o.Enabled = true
	o.Exporter = ExporterStdout
	p, err := NewProvider(context.Background(), o)
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background()))
}
