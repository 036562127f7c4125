// Package metrics 提供 dataagent 各服务的 Prometheus 指标。
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Path 指标暴露路径。
const Path = "/metrics"

// 结果标签取值
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics 业务指标集合。
type Metrics struct {
	// LLM 调用
	LLMCalls        *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec
	LLMInflight     prometheus.Gauge

	// Expert 循环
	ExpertSteps *prometheus.CounterVec

	// Orchestrator 任务
	OrchestratorTasks *prometheus.CounterVec

	// 摄取任务
	IngestJobs *prometheus.CounterVec

	// 注册中心存活 agent 数
	RegistryAgents prometheus.Gauge

	gatherer prometheus.Gatherer
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default 返回注册在默认 registry 上的指标实例。
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	})
	return defaultMetrics
}

// New 在给定 registerer 上创建指标。
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LLMCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataagent_llm_calls_total",
				Help: "Total number of LLM calls",
			},
			[]string{"provider", "kind", "status"},
		),
		LLMCallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataagent_llm_call_duration_seconds",
				Help:    "LLM call duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "kind"},
		),
		LLMInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "dataagent_llm_inflight",
			Help: "LLM calls currently holding a gate slot",
		}),
		ExpertSteps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataagent_expert_steps_total",
				Help: "Total number of expert loop steps",
			},
			[]string{"path", "outcome"},
		),
		OrchestratorTasks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataagent_orchestrator_tasks_total",
				Help: "Total number of dispatched plan tasks",
			},
			[]string{"agent", "status"},
		),
		IngestJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataagent_ingest_jobs_total",
				Help: "Total number of ingestion jobs",
			},
			[]string{"operation", "status"},
		),
		RegistryAgents: f.NewGauge(prometheus.GaugeOpts{
			Name: "dataagent_registry_agents",
			Help: "Number of agents present in the registry",
		}),
		gatherer: gatherer,
	}
}

// ObserveLLM 记录一次 LLM 调用。
func (m *Metrics) ObserveLLM(provider, kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.LLMCalls.WithLabelValues(provider, kind, status).Inc()
	m.LLMCallDuration.WithLabelValues(provider, kind).Observe(time.Since(start).Seconds())
}

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Register 将 /metrics 挂到 gin 路由上。
func (m *Metrics) Register(r gin.IRoutes) {
	r.GET(Path, gin.WrapH(m.Handler()))
}
