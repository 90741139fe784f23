package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/app"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the bot and the watchdog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx := cmd.Context()
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			logger.Info("support bot starting",
				zap.String("env", cfg.App.Env),
				zap.String("version", cfg.App.Version))
			if err := a.Serve(ctx); err != nil {
				return err
			}
			logger.Info("shut down cleanly")
			return nil
		},
	}
}
