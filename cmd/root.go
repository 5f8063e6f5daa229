// Package cmd implements the order-analyst command line.
package cmd

import (
	"fmt"

	"order-analyst/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// globals is filled in by the root command before any subcommand runs.
type globals struct {
	debug  bool
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "order-analyst",
		Short: "Order Analyst - answer questions about order data with an LLM agent",
		Long: `Order Analyst answers natural-language questions about daily order CSV files.

It plans, loads the data, queries it and renders charts through a ReAct agent,
and ships offline commands to benchmark and judge the agent's answers.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Initialize logger with default level to load config
		tempLogger, err := config.InitLogger("info")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		g.cfg = config.Load(tempLogger)

		level := g.cfg.LogLevel
		if g.debug {
			level = "debug"
		}
		if g.logger, err = config.InitLogger(level); err != nil {
			return fmt.Errorf("failed to re-initialize logger with configured level: %w", err)
		}
		return nil
	}
	cmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		config.Cleanup()
	}

	cmd.AddCommand(newServeCommand(g))
	cmd.AddCommand(newAskCommand(g))
	cmd.AddCommand(newBenchmarkCommand(g))
	cmd.AddCommand(newScoreCommand(g))
	cmd.AddCommand(newReformulateCommand(g))

	return cmd
}

func Execute() error {
	return newRootCommand().Execute()
}
