package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveLLM(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, reg)

	m.ObserveLLM("openai", "chat", time.Now(), nil)
	m.ObserveLLM("openai", "chat", time.Now(), errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("openai", "chat", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("openai", "chat", StatusError)))

	var nilMetrics *Metrics
	nilMetrics.ObserveLLM("x", "chat", time.Now(), nil)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := New(reg, reg)
	m.RegistryAgents.Set(3)

	r := gin.New()
	m.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dataagent_registry_agents 3")
}
