package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"order-analyst/web"
	"order-analyst/web/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Create context that listens for interrupt signals
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.initAssistant(ctx); err != nil {
				return err
			}

			sessions := services.NewSessionService(a.newOrchestrator, g.cfg.MemoryWindow, g.logger)
			cleanupService := web.NewCleanupService(sessions, g.logger)
			go web.StartSessionCleanup(ctx, g.cfg.CleanupInterval, g.cfg.SessionRetentionAge, cleanupService, g.logger)

			server := web.NewServer(sessions, a.registry, g.logger, g.cfg)
			port := fmt.Sprintf(":%d", g.cfg.WebPort)
			g.logger.Info("Starting Order Analyst web server", zap.String("port", port))
			return server.Start(ctx, port)
		},
	}
}
