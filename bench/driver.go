package bench

import (
	"context"
	"math/rand"
	"path/filepath"
	"sync"
	"time"

	"order-analyst/database"
	apperrors "order-analyst/errors"
	"order-analyst/llmclient"
	"order-analyst/metrics"
	"order-analyst/orchestrator"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrorAnswer replaces the generated answer of a row whose run failed.
const ErrorAnswer = "There was an error"

// DeclinePrefix is the extra instruction every benchmark run is given.
const DeclinePrefix = "if you cant answer for any reason please output this 'The system cannot answer this question'"

const tracerName = "order-analyst/bench"

// Invoker answers one question with a fresh assistant. Benchmark invokers
// pass DeclinePrefix as the orchestrator's extra instruction.
type Invoker func(ctx context.Context, question string) (*orchestrator.Result, error)

// Tracer records every traced call in the trace store under a caller chosen
// name so the run can be found again later.
type Tracer struct {
	store   database.TraceStore
	project string
	logger  *zap.Logger
}

func NewTracer(store database.TraceStore, project string, logger *zap.Logger) *Tracer {
	return &Tracer{store: store, project: project, logger: logger}
}

// Trace runs fn, counting the tokens of every completion it makes. A
// failure to record the run is logged, never returned.
func (t *Tracer) Trace(ctx context.Context, name string, fn Invoker, question string) (*orchestrator.Result, error) {
	ctx, usage := llmclient.WithUsage(ctx)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "bench.run")
	span.SetAttributes(attribute.String("trace_id", name))
	defer span.End()

	start := time.Now()
	res, err := fn(ctx, question)
	run := database.RunRecord{
		ID:          uuid.NewString(),
		Name:        name,
		Project:     t.project,
		Start:       start,
		End:         time.Now(),
		TotalTokens: usage.Total(),
	}
	if err != nil {
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if res != nil {
		run.Tools = res.Tools
	}
	if rerr := t.store.RecordRun(context.WithoutCancel(ctx), run); rerr != nil {
		t.logger.Warn("Failed to record run", zap.String("name", name), zap.Error(rerr))
	}
	return res, err
}

type Driver struct {
	invoke  Invoker
	tracer  *Tracer
	workers int
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewDriver(invoke Invoker, tracer *Tracer, workers int, m *metrics.Metrics, logger *zap.Logger) *Driver {
	if workers <= 0 {
		workers = 16
	}
	return &Driver{invoke: invoke, tracer: tracer, workers: workers, metrics: m, logger: logger}
}

// GenerateAnswers asks every question concurrently. Records come back in
// completion order; a failed row becomes an ErrorAnswer record.
func (d *Driver) GenerateAnswers(ctx context.Context, rows []DatasetRow) []Record {
	var (
		mu      sync.Mutex
		records = make([]Record, 0, len(rows))
	)
	var g errgroup.Group
	g.SetLimit(d.workers)

	for i, row := range rows {
		g.Go(func() error {
			rec, err := d.answer(ctx, row)
			d.metrics.BenchmarkRow(err)
			if err != nil {
				d.logger.Warn("Benchmark row failed", zap.Int("row", i), zap.String("question", row.Questions), zap.Error(err))
				rec = Record{GeneratedAnswer: ErrorAnswer}
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return records
}

func (d *Driver) answer(ctx context.Context, row DatasetRow) (rec Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.WrapErrorf(apperrors.ErrRunPanicked, "panic: %v", r)
		}
	}()

	traceID := uuid.NewString()
	res, err := d.tracer.Trace(ctx, traceID, d.invoke, row.Questions)
	if err != nil {
		return Record{}, err
	}
	return Record{
		RunID:           traceID,
		Question:        row.Questions,
		GeneratedAnswer: res.Output,
		Plan:            res.Plan,
	}, nil
}

// FetchRunMetadata joins records with the runs recorded since the given
// time, matching run name to record RunID. Records with no run are dropped.
func FetchRunMetadata(ctx context.Context, store database.TraceStore, project string, records []Record, since time.Time) ([]Record, error) {
	runs, err := store.ListRuns(ctx, project, since)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]database.RunRecord, len(runs))
	for _, r := range runs {
		byName[r.Name] = r
	}

	merged := make([]Record, 0, len(records))
	for _, rec := range records {
		run, ok := byName[rec.RunID]
		if !ok {
			continue
		}
		rec.Duration = run.Duration().Seconds()
		rec.Error = run.Error
		rec.TotalTokens = run.TotalTokens
		merged = append(merged, rec)
	}
	return merged, nil
}

// RunOptions controls one benchmark run.
type RunOptions struct {
	Name     string
	RunsDir  string
	Project  string
	Lookback time.Duration
}

// Run answers rows, merges trace metadata and writes RunsDir/<name>.csv. It
// returns the path written. When the merge fails the unmerged answers are
// written instead.
func (d *Driver) Run(ctx context.Context, store database.TraceStore, rows []DatasetRow, opts RunOptions) (string, error) {
	if opts.Name == "" {
		opts.Name = RandomName(8)
	}
	start := time.Now()
	records := d.GenerateAnswers(ctx, rows)
	d.logger.Info("Answers generated",
		zap.Int("rows", len(records)),
		zap.Duration("elapsed", time.Since(start)))

	since := time.Now().Add(-opts.Lookback)
	if opts.Lookback <= 0 {
		since = start
	}
	merged, err := FetchRunMetadata(ctx, store, opts.Project, records, since)
	if err != nil {
		d.logger.Warn("Failed to merge run metadata, writing raw answers", zap.Error(err))
		merged = records
	}

	path := filepath.Join(opts.RunsDir, opts.Name+".csv")
	if err := WriteRecords(path, merged, false); err != nil {
		return "", err
	}
	return path, nil
}

const nameAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomName returns n random alphanumerics.
func RandomName(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = nameAlphabet[rand.Intn(len(nameAlphabet))]
	}
	return string(b)
}
