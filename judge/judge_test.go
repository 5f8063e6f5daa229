package judge

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"order-analyst/llmclient"
	"order-analyst/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

type replies struct {
	out   []string
	err   error
	calls int
}

func (r *replies) Complete(ctx context.Context, req llmclient.Request) (*llmclient.Completion, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	c := r.out[0]
	r.out = r.out[1:]
	return &llmclient.Completion{Content: c}, nil
}

func fixedScore(s float64, err error) Similarity {
	return func(ctx context.Context, a, b string) (float64, error) { return s, err }
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name        string
		similarity  Similarity
		model       *replies
		wantVerdict bool
		wantMethod  string
		wantCalls   int
		wantExpl    string
	}{
		{"similar enough", fixedScore(0.93, nil), &replies{}, true, MethodSimilarity, 0,
			"The generated answer is similar to the reference answer based on similarity score of 0.93"},
		{"threshold is strict", fixedScore(0.8, nil), &replies{out: []string{`{"verdict": false}`}}, false, MethodLLM, 1, ""},
		{"model agrees", fixedScore(0.4, nil), &replies{out: []string{"```json\n{\"verdict\": true}\n```"}}, true, MethodLLM, 1, ""},
		{"repaired output", fixedScore(0.4, nil), &replies{out: []string{"yes they match", `{"verdict": true}`}}, true, MethodLLM, 2, ""},
		{"unrepairable output", fixedScore(0.4, nil), &replies{out: []string{"yes", "still yes"}}, false, MethodLLM, 2, "Error during evaluation: "},
		{"model down", fixedScore(0.1, nil), &replies{err: errors.New("timeout")}, false, MethodLLM, 1, "Error during evaluation: "},
		{"similarity error falls through", fixedScore(0, errors.New("no embedder")), &replies{out: []string{`{"verdict": true}`}}, true, MethodLLM, 1, ""},
		{"no similarity", nil, &replies{out: []string{`{"verdict": false}`}}, false, MethodLLM, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := New(tt.similarity, tt.model, 0, nil, zap.NewNop())
			v := j.Evaluate(context.Background(), "How many orders?", "12", "Twelve orders")
			if v.Verdict != tt.wantVerdict || v.Method != tt.wantMethod {
				t.Errorf("verdict = %+v", v)
			}
			if tt.model.calls != tt.wantCalls {
				t.Errorf("model calls = %d, want %d", tt.model.calls, tt.wantCalls)
			}
			if !strings.HasPrefix(v.Explanation, tt.wantExpl) {
				t.Errorf("explanation = %q, want prefix %q", v.Explanation, tt.wantExpl)
			}
		})
	}
}

func TestEvaluateIsIdempotentAboveThreshold(t *testing.T) {
	var seen []string
	similarity := func(ctx context.Context, a, b string) (float64, error) {
		seen = append(seen, a+"|"+b)
		if strings.EqualFold(a, b) {
			return 1, nil
		}
		return 0, nil
	}
	model := &replies{}
	j := New(similarity, model, 0.8, nil, zap.NewNop())

	first := j.Evaluate(context.Background(), "How many orders in December?", "12 orders", "12 Orders")
	second := j.Evaluate(context.Background(), "How many orders in December?", "12 orders", "12 Orders")

	if first != second {
		t.Errorf("verdicts differ: %+v vs %+v", first, second)
	}
	for i, v := range []Verdict{first, second} {
		if !v.Verdict || v.Method != MethodSimilarity {
			t.Errorf("call %d verdict = %+v, want a similarity verdict", i+1, v)
		}
	}
	if model.calls != 0 {
		t.Errorf("model calls = %d, want 0", model.calls)
	}
	if len(seen) != 2 || seen[0] != seen[1] {
		t.Errorf("similarity inputs = %v", seen)
	}
}

func TestEvaluateRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	j := New(fixedScore(0.99, nil), &replies{}, 0.8, metrics.New(reg), zap.NewNop())
	j.Evaluate(context.Background(), "q", "a", "a")
	j.Evaluate(context.Background(), "q", "a", "b")
	want := `
# HELP analyst_judge_verdicts_total Answer judge verdicts by method.
# TYPE analyst_judge_verdicts_total counter
analyst_judge_verdicts_total{method="similarity",verdict="true"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "analyst_judge_verdicts_total"); err != nil {
		t.Error(err)
	}
}

func TestEmbeddingSimilarity(t *testing.T) {
	vectors := map[string][]float32{"a": {1, 0}, "b": {1, 1}, "c": {0, 1}}
	emb := llmclient.EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		return vectors[text], nil
	})
	sim := EmbeddingSimilarity(emb)

	got, err := sim(context.Background(), "a", "b")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-1/math.Sqrt2) > 1e-6 {
		t.Errorf("sim(a,b) = %v", got)
	}
	if got, _ := sim(context.Background(), "a", "c"); got != 0 {
		t.Errorf("sim(a,c) = %v", got)
	}
	if _, err := Cosine([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("expected length mismatch error")
	}
}
