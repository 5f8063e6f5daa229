package cmd

import (
	"fmt"
	"strings"

	"order-analyst/progress"
	"order-analyst/runlog"
	"order-analyst/table"

	"github.com/spf13/cobra"
)

func newAskCommand(g *globals) *cobra.Command {
	var showPlan bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and write its run log",
		Long: `Answer a single question with the orchestrating agent.

Every tool call is recorded and the run is saved as <LOGS_DIR>/<run id>.json.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.initAssistant(ctx); err != nil {
				return err
			}

			o := a.newOrchestrator(table.NewStore(), nil, progress.NewLogging())
			res, err := o.Orchestrate(ctx, strings.Join(args, " "), "")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Output)
			if showPlan && res.Plan != "" {
				fmt.Fprintf(out, "\nPlan:\n%s\n", res.Plan)
			}
			fmt.Fprintf(out, "\nRun log: %s\n", runlog.Path(g.cfg.LogsDir, o.RunID()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPlan, "plan", false, "Also print the plan the agent followed")
	return cmd
}
