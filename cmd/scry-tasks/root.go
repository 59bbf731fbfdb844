package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/phrazzld/scry-tasks/internal/config"
	"github.com/phrazzld/scry-tasks/internal/platform/logger"
	"github.com/phrazzld/scry-tasks/internal/store"
)

// commandContext lazily loads the configuration shared by every subcommand.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.LoadFrom(path)
		if err != nil {
			c.configErr = fmt.Errorf("failed to load configuration: %w", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// toolLogger returns the logger used by the offline commands. It writes to
// out so that table output on stdout stays clean.
func (c *commandContext) toolLogger(cfg *config.Config, out io.Writer) (*slog.Logger, error) {
	return logger.SetupWithWriter(logger.Config{
		Level:  cfg.Server.LogLevel,
		Format: cfg.Server.LogFormat,
	}, out)
}

// withRepository opens the record log for an offline command and closes it
// afterwards. A running server holds the lock, so these commands fail fast
// with store.ErrLocked instead of racing it.
func (c *commandContext) withRepository(cmd *cobra.Command, readOnly bool, fn func(*store.Repository) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	log, err := c.toolLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	repo, err := store.Open(storeOptions(cfg, readOnly), log)
	if err != nil {
		return fmt.Errorf("failed to open record log: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("failed to close record log", "error", err)
		}
	}()

	return fn(repo)
}

func storeOptions(cfg *config.Config, readOnly bool) store.Options {
	return store.Options{
		Dir:       cfg.Store.DataDir,
		LogFile:   cfg.Store.LogFile,
		IndexFile: cfg.Store.IndexFile,
		ReadOnly:  readOnly,
	}
}

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "scry-tasks",
		Short:         "Persistent task log with a real-time dispatch queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd == cmd.Root() {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newVerifyCommand(ctx))
	rootCmd.AddCommand(newListCommand(ctx))
	rootCmd.AddCommand(newCompactCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))

	return rootCmd
}
