package cmd

import (
	"order-analyst/bench"
	"order-analyst/llmclient"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newReformulateCommand(g *globals) *cobra.Command {
	var fast bool
	cmd := &cobra.Command{
		Use:   "reformulate",
		Short: "Rewrite raw reference answers as short sentences",
		Long: `Rewrite the answers column of dataset.csv into concise natural language
and write dataset_reformulated.csv next to it. Out-of-scope rows are copied
unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rows, err := bench.ReadDataset(bench.DatasetPath(g.cfg.BenchmarksDir, false))
			if err != nil {
				return err
			}

			model, err := llmclient.NewModel(ctx, g.cfg.MainEndpoint(), g.cfg, nil, g.logger)
			if err != nil {
				return err
			}
			workers := 4
			if fast {
				workers = 16
			}
			out := bench.Reformulate(ctx, model, rows, workers, g.logger)

			path := bench.DatasetPath(g.cfg.BenchmarksDir, true)
			if err := bench.WriteDataset(path, out); err != nil {
				return err
			}
			g.logger.Info("Reformulated dataset saved", zap.String("path", path), zap.Int("rows", len(out)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fast, "reformulate", false, "Use 16 workers instead of 4")
	return cmd
}
