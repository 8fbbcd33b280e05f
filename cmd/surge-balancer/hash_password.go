package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/surge-balancer/internal/auth"
)

func newHashPasswordCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the login hash of a password (default: $SB_PASSWORD)",
		Long: `Print the SHA-256 hex digest the dashboard sends on login and stores in
the authentication cookie. Without an argument the current SB_PASSWORD is
hashed, falling back to the default password.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := auth.Password(opts.getenv)
			if len(args) == 1 {
				password = args[0]
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), auth.Hash(password))
			return err
		},
	}
}
