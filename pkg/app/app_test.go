package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/dataagent/pkg/app/cliflag"
)

type testOptions struct {
	Addr     string `mapstructure:"addr"`
	MaxSteps int    `mapstructure:"max-steps"`
	complete bool
}

func (o *testOptions) Flags() (fss cliflag.NamedFlagSets) {
	fs := fss.FlagSet("test")
	o.addFlags(fs)
	return fss
}

func (o *testOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "addr", o.Addr, "listen address")
	fs.IntVar(&o.MaxSteps, "max-steps", o.MaxSteps, "max steps")
}

func (o *testOptions) Complete() error { o.complete = true; return nil }
func (o *testOptions) Validate() error { return nil }

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "DATAAGENT_EXPERT", envPrefix("dataagent-expert"))
	assert.Equal(t, "A_B_C", envPrefix("a.b-c"))
}

func TestConfigFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("addr: \":9000\"\nmax-steps: 7\n"), 0o600))

	opts := &testOptions{Addr: ":8000", MaxSteps: 5}
	var ran bool
	a := NewApp(
		WithName("dataagent-app-test"),
		WithOptions(opts),
		WithNoVersion(),
		WithRunFunc(func() error { ran = true; return nil }),
	)
	a.Command().SetArgs([]string{"-c", cfg, "--max-steps", "3"})
	require.NoError(t, a.Command().Execute())

	assert.True(t, ran)
	assert.True(t, opts.complete)
	assert.Equal(t, ":9000", opts.Addr)
	assert.Equal(t, 3, opts.MaxSteps)
}
