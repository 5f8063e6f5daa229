package cmd

import (
	"path/filepath"

	"order-analyst/bench"
	"order-analyst/judge"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScoreCommand(g *globals) *cobra.Command {
	var (
		run          string
		reformulated bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Judge a benchmark run against the reference answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			records, err := bench.ReadRecords(filepath.Join(g.cfg.RunsDir, run+".csv"))
			if err != nil {
				return err
			}
			dataset, err := bench.ReadDataset(bench.DatasetPath(g.cfg.BenchmarksDir, reformulated))
			if err != nil {
				return err
			}

			a, err := newApp(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			j := judge.New(judge.EmbeddingSimilarity(a.embedder), a.judge, g.cfg.JudgeThreshold, a.metrics, g.logger)
			scored := bench.Score(ctx, j, bench.MergeReferences(records, dataset), g.cfg.JudgeWorkers)

			path := bench.ResultsPath(g.cfg.BenchmarksDir, run, reformulated)
			if err := bench.WriteRecords(path, scored, true); err != nil {
				return err
			}
			g.logger.Info("Benchmark results saved", zap.String("path", path))
			bench.Summarize(scored).Print(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().StringVar(&run, "run", "", "Name of the run to score")
	cmd.Flags().BoolVar(&reformulated, "use_reformulated", false, "Compare against dataset_reformulated.csv")
	cmd.MarkFlagRequired("run")
	return cmd
}
