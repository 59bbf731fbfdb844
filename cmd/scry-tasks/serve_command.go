package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phrazzld/scry-tasks/internal/platform/logger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			log, err := logger.Setup(logger.Config{
				Level:  cfg.Server.LogLevel,
				Format: cfg.Server.LogFormat,
			})
			if err != nil {
				return fmt.Errorf("failed to set up logger: %w", err)
			}

			log.Info("Server configuration loaded",
				"port", cfg.Server.Port,
				"log_level", cfg.Server.LogLevel,
				"data_dir", cfg.Store.DataDir)
			if cfg.Auth.JWTSecret != "" {
				log.Debug("Auth configuration", "jwt_secret_present", true)
			}

			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.Run(runCtx)
		},
	}
}
