package bench

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"order-analyst/database"
	apperrors "order-analyst/errors"
	"order-analyst/judge"
	"order-analyst/llmclient"
	"order-analyst/orchestrator"

	"go.uber.org/zap"
)

type memoryTraces struct {
	mu      sync.Mutex
	runs    []database.RunRecord
	listErr error
}

func (m *memoryTraces) RecordRun(ctx context.Context, run database.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryTraces) ListRuns(ctx context.Context, project string, since time.Time) ([]database.RunRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.RunRecord
	for _, r := range m.runs {
		if r.Project == project && !r.Start.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryTraces) Close() error { return nil }

type tokenModel struct{}

func (tokenModel) Complete(ctx context.Context, req llmclient.Request) (*llmclient.Completion, error) {
	return &llmclient.Completion{Content: "ok", TokensIn: 30, TokensOut: 12}, nil
}

// answering invokes a counted model once and answers with the question text.
func answering(fail map[string]bool) Invoker {
	model := llmclient.WithInstrumentation("test", nil)(tokenModel{})
	return func(ctx context.Context, question string) (*orchestrator.Result, error) {
		if _, err := model.Complete(ctx, llmclient.Prompt("", question)); err != nil {
			return nil, err
		}
		if fail[question] {
			return nil, errors.New("model unavailable")
		}
		if question == "panic" {
			panic("boom")
		}
		return &orchestrator.Result{Output: "A:" + question, Plan: "1. load", Tools: []string{"data_loader"}}, nil
	}
}

func rows(questions ...string) []DatasetRow {
	var out []DatasetRow
	for _, q := range questions {
		out = append(out, DatasetRow{Questions: q, Answers: "ref " + q, Type: "Ordinary"})
	}
	return out
}

func TestGenerateAnswers(t *testing.T) {
	store := &memoryTraces{}
	d := NewDriver(answering(map[string]bool{"q2": true}), NewTracer(store, "orders", zap.NewNop()), 3, nil, zap.NewNop())

	records := d.GenerateAnswers(context.Background(), rows("q1", "q2", "q3", "panic"))
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}

	var failed, answered int
	for _, r := range records {
		switch r.GeneratedAnswer {
		case ErrorAnswer:
			failed++
			if r.RunID != "" || r.Question != "" || r.Plan != "" {
				t.Errorf("failed record carries data: %+v", r)
			}
		default:
			answered++
			if r.GeneratedAnswer != "A:"+r.Question || r.Plan != "1. load" || r.RunID == "" {
				t.Errorf("record = %+v", r)
			}
		}
	}
	if failed != 2 || answered != 2 {
		t.Errorf("failed = %d, answered = %d", failed, answered)
	}

	if len(store.runs) != 3 {
		t.Fatalf("traced runs = %d, want 3", len(store.runs))
	}
	for _, run := range store.runs {
		if run.Project != "orders" || run.TotalTokens != 42 {
			t.Errorf("run = %+v", run)
		}
		if run.Error == "" && (len(run.Tools) != 1 || run.Tools[0] != "data_loader") {
			t.Errorf("run tools = %v", run.Tools)
		}
	}
}

func TestFetchRunMetadata(t *testing.T) {
	now := time.Now()
	store := &memoryTraces{runs: []database.RunRecord{
		{Name: "t1", Project: "p", Start: now.Add(-2 * time.Second), End: now, TotalTokens: 100},
		{Name: "t2", Project: "p", Start: now.Add(-time.Second), End: now, Error: "boom"},
		{Name: "t3", Project: "p", Start: now.Add(-5 * time.Hour), End: now},
	}}
	records := []Record{
		{RunID: "t1", Question: "a"},
		{RunID: "t2", Question: "b"},
		{RunID: "t3", Question: "too old"},
		{RunID: "missing", Question: "c"},
	}

	got, err := FetchRunMetadata(context.Background(), store, "p", records, now.Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("merged = %+v", got)
	}
	if got[0].RunID != "t1" || got[0].Duration != 2 || got[0].TotalTokens != 100 || got[0].Error != "" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].RunID != "t2" || got[1].Error != "boom" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestRunWritesResults(t *testing.T) {
	dir := t.TempDir()
	store := &memoryTraces{}
	d := NewDriver(answering(nil), NewTracer(store, "p", zap.NewNop()), 2, nil, zap.NewNop())

	path, err := d.Run(context.Background(), store, rows("q1", "q2"), RunOptions{Name: "nightly", RunsDir: dir, Project: "p", Lookback: 2 * time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "nightly.csv") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "run_id,question,generated_answer,plan,duration (sec),error,total_tokens\n") {
		t.Errorf("header = %q", strings.SplitN(string(data), "\n", 2)[0])
	}
	got, err := ReadRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Question < got[j].Question })
	if len(got) != 2 || got[0].GeneratedAnswer != "A:q1" || got[1].TotalTokens != 42 {
		t.Errorf("records = %+v", got)
	}
}

func TestRunWritesRawAnswersWhenMergeFails(t *testing.T) {
	dir := t.TempDir()
	store := &memoryTraces{listErr: errors.New("store down")}
	d := NewDriver(answering(nil), NewTracer(store, "p", zap.NewNop()), 2, nil, zap.NewNop())

	path, err := d.Run(context.Background(), store, rows("q1"), RunOptions{RunsDir: dir, Project: "p"})
	if err != nil {
		t.Fatal(err)
	}
	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	if len(name) != 8 {
		t.Errorf("random name = %q", name)
	}
	got, err := ReadRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].GeneratedAnswer != "A:q1" || got[0].TotalTokens != 0 {
		t.Errorf("records = %+v", got)
	}
}

func TestTracerWithSQLiteStore(t *testing.T) {
	store, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "traces.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	tracer := NewTracer(store, "p", zap.NewNop())
	if _, err := tracer.Trace(context.Background(), "trace-1", answering(nil), "q"); err != nil {
		t.Fatal(err)
	}
	runs, err := store.ListRuns(context.Background(), "p", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Name != "trace-1" || runs[0].TotalTokens != 42 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.csv")
	in := []DatasetRow{
		{Questions: "How many orders, in total?", Answers: "12", Code: "len(df)", Type: "Ordinary", Difficulty: "easy"},
		{Questions: "What is the weather?", Answers: "The system cannot answer this question", Type: TypeOutOfScope},
	}
	if err := WriteDataset(path, in); err != nil {
		t.Fatal(err)
	}
	out, err := ReadDataset(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Errorf("rows = %+v", out)
	}
	if _, err := ReadDataset(filepath.Join(t.TempDir(), "none.csv")); err == nil {
		t.Error("expected error for a missing dataset")
	}
}

type verdicts map[string]bool

func (v verdicts) Evaluate(ctx context.Context, question, reference, generated string) judge.Verdict {
	return judge.Verdict{Verdict: v[question], Method: judge.MethodLLM}
}

func TestScoreAndSummarize(t *testing.T) {
	records := []Record{
		{RunID: "1", Question: "a", GeneratedAnswer: "x", Duration: 2, TotalTokens: 10},
		{RunID: "2", Question: "b", GeneratedAnswer: "y", Duration: 4, TotalTokens: 20, Error: "boom"},
		{RunID: "3", Question: "c", GeneratedAnswer: "z", Duration: 6, TotalTokens: 30},
		{RunID: "4", Question: "d", GeneratedAnswer: "w", Duration: 8, TotalTokens: 40},
	}
	merged := MergeReferences(records, rows("a", "b", "c"))
	if merged[0].ReferenceAnswer != "ref a" || merged[3].ReferenceAnswer != "" {
		t.Errorf("merged = %+v", merged)
	}

	scored := Score(context.Background(), verdicts{"a": true, "c": true, "d": true}, merged, 2)
	for i, r := range scored {
		if r.RunID != records[i].RunID {
			t.Fatalf("order not preserved at %d: %+v", i, r)
		}
		if !strings.Contains(r.RawJudgeOutput, `"method":"secondary-LLM"`) {
			t.Errorf("raw judge output = %q", r.RawJudgeOutput)
		}
	}

	s := Summarize(scored)
	want := Summary{TotalRuns: 4, SuccessfulRuns: 3, AverageDuration: 5, TotalTokens: 100, Accuracy: 75}
	if s != want {
		t.Errorf("summary = %+v, want %+v", s, want)
	}
	var buf bytes.Buffer
	s.Print(&buf)
	if !strings.Contains(buf.String(), "Accuracy: 75.00 %") {
		t.Errorf("printed = %q", buf.String())
	}

	path := ResultsPath(t.TempDir(), "nightly", true)
	if filepath.Base(path) != "benchmark_results_nightly_reformulated.csv" {
		t.Errorf("results path = %q", path)
	}
	if err := WriteRecords(path, scored, true); err != nil {
		t.Fatal(err)
	}
	back, err := ReadRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 4 || !back[0].Verdict || back[1].Verdict || back[0].ReferenceAnswer != "ref a" || back[3].Duration != 8 {
		t.Errorf("read back = %+v", back)
	}
}

type rewriter struct {
	mu    sync.Mutex
	calls int
}

func (r *rewriter) Complete(ctx context.Context, req llmclient.Request) (*llmclient.Completion, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	prompt := req.Messages[len(req.Messages)-1].Content
	if strings.Contains(prompt, "'fail'") {
		return nil, errors.New("timeout")
	}
	return &llmclient.Completion{Content: "  There were 12 orders.\n"}, nil
}

func TestReformulate(t *testing.T) {
	in := []DatasetRow{
		{Questions: "How many orders?", Answers: "12", Type: "Ordinary"},
		{Questions: "Weather?", Answers: "The system cannot answer this question", Type: TypeOutOfScope},
		{Questions: "fail", Answers: "raw", Type: "Ordinary"},
	}
	model := &rewriter{}
	out := Reformulate(context.Background(), model, in, 4, zap.NewNop())

	if out[0].Answers != "There were 12 orders." {
		t.Errorf("row 0 = %q", out[0].Answers)
	}
	if out[1].Answers != in[1].Answers || out[2].Answers != "raw" {
		t.Errorf("rows = %+v", out)
	}
	if model.calls != 2 {
		t.Errorf("calls = %d, want 2", model.calls)
	}
	if in[0].Answers != "12" {
		t.Error("input rows modified")
	}
}

// closeFailer accepts writes and fails on Close.
type closeFailer struct{ bytes.Buffer }

func (c *closeFailer) Close() error { return errors.New("disk full") }

func TestWriteCSVReportsCloseError(t *testing.T) {
	var out closeFailer
	err := writeCSV(&out, "runs/x.csv", []string{"questions"}, [][]string{{"q1"}})
	if !errors.Is(err, apperrors.ErrFileOperation) || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want a file operation error carrying the close failure", err)
	}
	if out.String() != "questions\nq1\n" {
		t.Errorf("written = %q", out.String())
	}
}
