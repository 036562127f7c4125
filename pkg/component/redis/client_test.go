package redis

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	options "github.com/kart-io/dataagent/pkg/options/redis"
)

func TestNewAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	opts := options.NewOptions()
	opts.Host = host
	opts.Port, _ = strconv.Atoi(port)

	ctx := context.Background()
	c, err := New(ctx, opts)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "redis", c.Name())
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Client().Set(ctx, "k", "v", 0).Err())
	v, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestNewRejectsNilAndUnreachable(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)

	opts := options.NewOptions()
	opts.Host = "127.0.0.1"
	opts.Port = 1
	opts.MaxRetries = -1
	_, err = New(context.Background(), opts)
	require.Error(t, err)
}
