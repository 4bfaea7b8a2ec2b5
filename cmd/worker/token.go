package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/satriahrh/arunika-core/internal/auth"
)

// newTokenCmd creates the "arunika-worker token" subcommand.
func newTokenCmd() *cobra.Command {
	var (
		secret  string
		role    string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a worker or satellite",
		Long:  "Token signs a JWT with the core's AUTH_SECRET and prints it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("token: --secret or AUTH_SECRET is required")
			}
			if !auth.ValidRole(role) {
				return fmt.Errorf("token: %w: %q", auth.ErrInvalidRole, role)
			}
			token, err := auth.GenerateToken([]byte(secret), subject, role, ttl)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&secret, "secret", os.Getenv("AUTH_SECRET"), "signing secret")
	flags.StringVar(&role, "role", auth.RoleWorker, "role: worker or satellite")
	flags.StringVar(&subject, "subject", "", "token subject, e.g. a worker or satellite id")
	flags.DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")

	return cmd
}
