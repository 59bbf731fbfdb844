package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/phrazzld/scry-tasks/internal/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token for the maintenance endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Auth.AdminEnabled() {
				return errors.New("admin endpoints are disabled: set auth.jwt_secret")
			}

			lifetime := time.Duration(cfg.Auth.TokenLifetimeMinutes) * time.Minute
			tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, lifetime)
			if err != nil {
				return err
			}

			token, err := tokens.GenerateToken(cmd.Context(), subject)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "Subject recorded in the token")
	return cmd
}
