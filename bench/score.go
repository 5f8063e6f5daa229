package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"order-analyst/judge"

	"golang.org/x/sync/errgroup"
)

// Evaluator judges one generated answer against its reference.
type Evaluator interface {
	Evaluate(ctx context.Context, question, reference, generated string) judge.Verdict
}

// MergeReferences left-joins records with the dataset on the question text,
// filling ReferenceAnswer from the dataset answers.
func MergeReferences(records []Record, dataset []DatasetRow) []Record {
	refs := make(map[string]string, len(dataset))
	for _, row := range dataset {
		if _, seen := refs[row.Questions]; !seen {
			refs[row.Questions] = row.Answers
		}
	}
	out := make([]Record, len(records))
	for i, rec := range records {
		rec.ReferenceAnswer = refs[rec.Question]
		out[i] = rec
	}
	return out
}

// Score judges every record concurrently, keeping input order.
func Score(ctx context.Context, ev Evaluator, records []Record, workers int) []Record {
	if workers <= 0 {
		workers = 16
	}
	out := make([]Record, len(records))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, rec := range records {
		g.Go(func() error {
			v := ev.Evaluate(ctx, rec.Question, rec.ReferenceAnswer, rec.GeneratedAnswer)
			rec.Verdict = v.Verdict
			raw, _ := json.Marshal(v)
			rec.RawJudgeOutput = string(raw)
			out[i] = rec
			return nil
		})
	}
	g.Wait()
	return out
}

// DatasetPath is dataset.csv or dataset_reformulated.csv inside dir.
func DatasetPath(dir string, reformulated bool) string {
	if reformulated {
		return filepath.Join(dir, "dataset_reformulated.csv")
	}
	return filepath.Join(dir, "dataset.csv")
}

// ResultsPath is where the judged results of run are written.
func ResultsPath(dir, run string, reformulated bool) string {
	suffix := ""
	if reformulated {
		suffix = "_reformulated"
	}
	return filepath.Join(dir, fmt.Sprintf("benchmark_results_%s%s.csv", run, suffix))
}

type Summary struct {
	TotalRuns       int
	SuccessfulRuns  int
	AverageDuration float64
	TotalTokens     int
	Accuracy        float64
}

func Summarize(records []Record) Summary {
	s := Summary{TotalRuns: len(records)}
	if len(records) == 0 {
		return s
	}
	var duration float64
	var correct int
	for _, r := range records {
		if r.Error == "" {
			s.SuccessfulRuns++
		}
		if r.Verdict {
			correct++
		}
		duration += r.Duration
		s.TotalTokens += r.TotalTokens
	}
	s.AverageDuration = duration / float64(len(records))
	s.Accuracy = float64(correct) / float64(len(records)) * 100
	return s
}

func (s Summary) Print(w io.Writer) {
	fmt.Fprintln(w, "Test Results Summary")
	fmt.Fprintln(w, "Total Runs:", s.TotalRuns)
	fmt.Fprintln(w, "Successful Runs:", s.SuccessfulRuns)
	fmt.Fprintf(w, "Average Duration: %.2f seconds\n", s.AverageDuration)
	fmt.Fprintf(w, "Total Tokens Used: %d tokens\n", s.TotalTokens)
	fmt.Fprintf(w, "Accuracy: %.2f %%\n", s.Accuracy)
}
