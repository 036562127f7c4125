package cliflag

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamedFlagSetsOrder(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("redis").String("redis.host", "127.0.0.1", "Redis host")
	fss.FlagSet("log").String("log.level", "INFO", "Log level")
	fss.FlagSet("redis").Int("redis.port", 6379, "Redis port")

	assert.Equal(t, []string{"redis", "log"}, fss.Order)
	assert.NotNil(t, fss.FlagSets["redis"].Lookup("redis.port"))

	var buf bytes.Buffer
	PrintSections(&buf, fss, 0)
	assert.Contains(t, buf.String(), "Redis flags:")
	assert.Contains(t, buf.String(), "--log.level")
}
