package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"order-analyst/engine"
	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/table"
	"order-analyst/tools"

	"go.uber.org/zap"
)

type scriptedModel struct {
	replies  []string
	requests []llmclient.Request
}

func (s *scriptedModel) Complete(ctx context.Context, req llmclient.Request) (*llmclient.Completion, error) {
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return &llmclient.Completion{Content: "```sql\nSELECT 1\n```"}, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &llmclient.Completion{Content: reply}, nil
}

func (s *scriptedModel) lastObservation() string {
	msgs := s.requests[len(s.requests)-1].Messages
	return msgs[len(msgs)-1].Content
}

func orders() *table.Table {
	return &table.Table{
		Columns: []string{"order_id", "vendor", "quantity"},
		Rows: [][]string{
			{"1", "acme", "10"},
			{"2", "globex", "4"},
			{"3", "acme", "6"},
		},
	}
}

type echoLookup struct{ queries []string }

func (e *echoLookup) Descriptor() tools.Descriptor { return tools.Descriptor{Name: "RAGTool"} }
func (e *echoLookup) Run(ctx context.Context, input string) string {
	e.queries = append(e.queries, input)
	return `[{"column":"vendor","description":"Vendor name","data_type":"string","score":0.9}]`
}

func newAnalyst(t *testing.T, model llmclient.Model, lookup tools.Tool, opts Options) *Analyst {
	t.Helper()
	a, err := NewAnalyst(model, engine.NewSQLite(zap.NewNop()), lookup, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAnalyst: %v", err)
	}
	return a
}

func TestAskRunsCodeThenAnswers(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"Thought: count per vendor\n```sql\nSELECT vendor, SUM(quantity) AS total FROM df GROUP BY vendor ORDER BY total DESC\n```",
		"Final Answer: acme ordered the most units (16).",
	}}
	a := newAnalyst(t, model, nil, Options{MaxIterations: 5, ConsecutiveErrors: 3})

	answer, err := a.Ask(context.Background(), orders(), "Which vendor ordered the most units?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != "acme ordered the most units (16)." {
		t.Errorf("answer = %q", answer)
	}
	if len(model.requests) != 2 {
		t.Fatalf("model calls = %d, want 2", len(model.requests))
	}
	system := model.requests[0].Messages[0].Content
	if !strings.Contains(system, "| order_id | vendor | quantity |") || !strings.Contains(system, "SQLite table `df`") {
		t.Errorf("system prompt lacks table head: %s", system)
	}
	if obs := model.lastObservation(); !strings.Contains(obs, "| acme | 16 |") {
		t.Errorf("observation = %q", obs)
	}
}

func TestAskStopsAtIterationLimit(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"```sql\nSELECT COUNT(*) FROM df\n```",
		"```sql\nSELECT MAX(quantity) FROM df\n```",
	}}
	a := newAnalyst(t, model, nil, Options{MaxIterations: 2, ConsecutiveErrors: 3})

	answer, err := a.Ask(context.Background(), orders(), "q")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer != StoppedMessage {
		t.Errorf("answer = %q, want %q", answer, StoppedMessage)
	}
}

func TestAskStopsAtTimeLimit(t *testing.T) {
	a := newAnalyst(t, &scriptedModel{}, nil, Options{MaxIterations: 100, MaxExecutionTime: time.Nanosecond})
	answer, err := a.Ask(context.Background(), orders(), "q")
	if err != nil || answer != StoppedMessage {
		t.Errorf("Ask() = %q, %v", answer, err)
	}
}

func TestAskFailsAfterConsecutiveErrors(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"```sql\nSELECT nope FROM df\n```",
		"I am not sure.",
		"```sql\nSELECT also_nope FROM df\n```",
	}}
	a := newAnalyst(t, model, nil, Options{MaxIterations: 10, ConsecutiveErrors: 3})

	_, err := a.Ask(context.Background(), orders(), "q")
	if !apperrors.Is(err, apperrors.ErrPythonExecution) {
		t.Fatalf("err = %v, want ErrPythonExecution", err)
	}
	if !strings.Contains(err.Error(), "also_nope") {
		t.Errorf("error should carry the last failure: %v", err)
	}
}

func TestAskRepeatedCodeIsNotRerun(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"```sql\nSELECT COUNT(*) AS n FROM df\n```",
		"```sql\nSELECT   COUNT(*) AS n\nFROM df\n```",
		"Final Answer: 3",
	}}
	a := newAnalyst(t, model, nil, Options{MaxIterations: 5, ConsecutiveErrors: 3})
	if _, err := a.Ask(context.Background(), orders(), "q"); err != nil {
		t.Fatal(err)
	}
	if obs := model.lastObservation(); !strings.Contains(obs, "already ran") {
		t.Errorf("observation = %q", obs)
	}
}

func TestAskRAGVariantLooksUpColumns(t *testing.T) {
	lookup := &echoLookup{}
	model := &scriptedModel{replies: []string{
		"Thought: which columns?\nAction: RAGTool\nAction Input: What attributes are related to vendors?",
		"Final Answer: use the vendor column",
	}}
	a := newAnalyst(t, model, lookup, Options{Variant: VariantRAG, MaxIterations: 5})

	answer, err := a.Ask(context.Background(), orders(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "use the vendor column" {
		t.Errorf("answer = %q", answer)
	}
	if len(lookup.queries) != 1 || lookup.queries[0] != "What attributes are related to vendors?" {
		t.Errorf("queries = %q", lookup.queries)
	}
	system := model.requests[0].Messages[0].Content
	if strings.Contains(system, "| acme |") || !strings.Contains(system, "Columns: order_id, vendor, quantity") {
		t.Errorf("rag prompt should list columns without rows: %s", system)
	}
}

func TestNewAnalystValidatesVariant(t *testing.T) {
	eng := engine.NewSQLite(zap.NewNop())
	if _, err := NewAnalyst(&scriptedModel{}, eng, nil, Options{Variant: "fancy"}, zap.NewNop()); !apperrors.IsInvalidInput(err) {
		t.Errorf("unknown variant err = %v", err)
	}
	if _, err := NewAnalyst(&scriptedModel{}, eng, nil, Options{Variant: VariantRAG}, zap.NewNop()); !apperrors.IsInvalidInput(err) {
		t.Errorf("rag without lookup err = %v", err)
	}
}

func TestFinalAnswer(t *testing.T) {
	tests := []struct {
		reply string
		want  string
		ok    bool
	}{
		{"Thought: done\nFinal Answer: 42", "42", true},
		{"```sql\nSELECT 1\n```\nFinal Answer: 1", "", false},
		{"Final Answer: see below\n```sql\nSELECT 1\n```", "see below\n```sql\nSELECT 1\n```", true},
		{"no answer here", "", false},
	}
	for _, tt := range tests {
		got, ok := FinalAnswer(tt.reply)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FinalAnswer(%q) = %q, %v", tt.reply, got, ok)
		}
	}
}
