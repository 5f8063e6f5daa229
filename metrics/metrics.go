package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors exported by the assistant. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	llmRequests    *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	llmTokens      *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	orchestrations *prometheus.CounterVec
	judgeVerdicts  *prometheus.CounterVec
	benchmarkRows  *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_llm_requests_total",
				Help: "Model requests by provider and outcome.",
			},
			[]string{"provider", "status"},
		),
		llmLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analyst_llm_request_duration_seconds",
				Help:    "Model request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		llmTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_llm_tokens_total",
				Help: "Tokens consumed by direction.",
			},
			[]string{"provider", "direction"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_tool_invocations_total",
				Help: "Tool invocations made by the orchestrator.",
			},
			[]string{"tool"},
		),
		orchestrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_orchestrations_total",
				Help: "Completed orchestration runs by outcome.",
			},
			[]string{"status"},
		),
		judgeVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_judge_verdicts_total",
				Help: "Answer judge verdicts by method.",
			},
			[]string{"method", "verdict"},
		),
		benchmarkRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analyst_benchmark_rows_total",
				Help: "Benchmark rows by outcome.",
			},
			[]string{"status"},
		),
	}
}

func (m *Metrics) ObserveLLMRequest(provider string, elapsed time.Duration, err error, tokensIn, tokensOut int) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, status(err)).Inc()
	m.llmLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.llmTokens.WithLabelValues(provider, "in").Add(float64(tokensIn))
	m.llmTokens.WithLabelValues(provider, "out").Add(float64(tokensOut))
}

func (m *Metrics) ToolInvoked(tool string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool).Inc()
}

func (m *Metrics) OrchestrationDone(err error) {
	if m == nil {
		return
	}
	m.orchestrations.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) JudgeVerdict(method string, verdict bool) {
	if m == nil {
		return
	}
	m.judgeVerdicts.WithLabelValues(method, strconv.FormatBool(verdict)).Inc()
}

func (m *Metrics) BenchmarkRow(err error) {
	if m == nil {
		return
	}
	m.benchmarkRows.WithLabelValues(status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
