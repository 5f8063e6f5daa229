package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ToolInvoked("data_loader")
	m.ToolInvoked("data_loader")
	m.JudgeVerdict("similarity", true)
	m.BenchmarkRow(fmt.Errorf("boom"))
	m.ObserveLLMRequest("llamacpp", 20*time.Millisecond, nil, 10, 4)

	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("data_loader")); got != 2 {
		t.Errorf("tool calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.judgeVerdicts.WithLabelValues("similarity", "true")); got != 1 {
		t.Errorf("judge verdicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.benchmarkRows.WithLabelValues("error")); got != 1 {
		t.Errorf("benchmark rows = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("llamacpp", "in")); got != 10 {
		t.Errorf("tokens in = %v, want 10", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ToolInvoked("x")
	m.OrchestrationDone(nil)
	m.JudgeVerdict("secondary-LLM", false)
	m.BenchmarkRow(nil)
	m.ObserveLLMRequest("openai", time.Second, nil, 1, 1)
}
