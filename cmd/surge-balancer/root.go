package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/surge-balancer/internal/config"
	"github.com/John-Robertt/surge-balancer/internal/logging"
)

type rootOptions struct {
	configFile string
	// getenv feeds the data store (SB_PASSWORD, SB_DATASTORAGE, ...).
	getenv func(string) string
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := &rootOptions{getenv: getenv}

	cmd := &cobra.Command{
		Use:   "surge-balancer",
		Short: "Share proxy subscriptions with Surge users",
		Long: `surge-balancer keeps a list of users and proxy subscriptions, checks the
subscriptions, and hands every enabled user a Surge profile built from a
shared template.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "settings file (default ./surge-balancer.yaml, then /etc/surge-balancer/surge-balancer.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newServeCmd(opts),
		newHashPasswordCmd(opts),
		newConfigCmd(opts),
		newHealthcheckCmd(opts),
	)
	return cmd
}

// settings resolves the process settings and the logger for cmd.
func (o *rootOptions) settings(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	settings, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewWriter(cmd.ErrOrStderr(), logging.Config{
		Level:  settings.Log.Level,
		Format: settings.Log.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return settings, logger, nil
}
