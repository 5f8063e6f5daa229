package cmd

import (
	"context"
	"fmt"

	"order-analyst/bench"
	"order-analyst/orchestrator"
	"order-analyst/table"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newBenchmarkCommand(g *globals) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Answer every dataset question and save the run",
		Long: `Answer every question in <BENCHMARKS_DIR>/dataset.csv concurrently.

Each answer is traced in the trace store, then merged with its trace metadata
and written to <RUNS_DIR>/<name>.csv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rows, err := bench.ReadDataset(bench.DatasetPath(g.cfg.BenchmarksDir, false))
			if err != nil {
				return err
			}

			a, err := newApp(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.initAssistant(ctx); err != nil {
				return err
			}

			invoke := func(ctx context.Context, question string) (*orchestrator.Result, error) {
				return a.newOrchestrator(table.NewStore(), nil, nil).Orchestrate(ctx, question, bench.DeclinePrefix)
			}
			tracer := bench.NewTracer(a.store, g.cfg.TraceProject, g.logger)
			driver := bench.NewDriver(invoke, tracer, g.cfg.BenchmarkWorkers, a.metrics, g.logger)

			path, err := driver.Run(ctx, a.store, rows, bench.RunOptions{
				Name:     name,
				RunsDir:  g.cfg.RunsDir,
				Project:  g.cfg.TraceProject,
				Lookback: g.cfg.TraceLookbackHours,
			})
			if err != nil {
				return err
			}
			g.logger.Info("Benchmark run saved", zap.String("path", path))
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Run name (default: 8 random characters)")
	return cmd
}
