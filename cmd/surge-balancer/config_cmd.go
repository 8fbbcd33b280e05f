package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/surge-balancer/internal/store"
)

const configLoadTimeout = 10 * time.Second

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	labelColor   = color.New(color.FgCyan)
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the stored configuration",
	}
	cmd.AddCommand(newConfigCheckCmd(opts), newConfigDumpCmd(opts))
	return cmd
}

func newConfigCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the configuration once and report warnings",
		Long: `Load the configuration the same way the server does and print every
warning. Exits with status 1 when there is at least one warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfiguration(cmd)
			if err != nil {
				return err
			}
			return printCheck(cmd.OutOrStdout(), cfg)
		},
	}
}

func printCheck(w io.Writer, cfg *store.Configuration) error {
	storage := string(cfg.DataStorageType)
	if cfg.DataStorageURI != "" {
		storage += " (" + cfg.DataStorageURI + ")"
	}
	mode := "read-only"
	if cfg.Features.Writable {
		mode = "writable"
	}
	labelColor.Fprint(w, "storage:       ")
	fmt.Fprintf(w, "%s, %s\n", storage, mode)
	labelColor.Fprint(w, "users:         ")
	fmt.Fprintf(w, "%d\n", len(cfg.Users))
	labelColor.Fprint(w, "subscriptions: ")
	fmt.Fprintf(w, "%d (%d checked)\n", len(cfg.Subscriptions), len(cfg.SubscriptionCaches))
	labelColor.Fprint(w, "template:      ")
	if strings.TrimSpace(cfg.Template) == "" {
		fmt.Fprintln(w, "not set")
	} else {
		fmt.Fprintln(w, "set")
	}

	if len(cfg.Warnings) == 0 {
		okColor.Fprintln(w, "no warnings")
		return nil
	}
	for _, msg := range cfg.Warnings {
		warningColor.Fprint(w, "warning: ")
		fmt.Fprintln(w, msg)
	}
	return fmt.Errorf("%d configuration warning(s)", len(cfg.Warnings))
}

func newConfigDumpCmd(opts *rootOptions) *cobra.Command {
	var (
		format   string
		settings bool
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the configuration as JSON or YAML",
		Long: `Print the stored configuration (users, subscriptions, caches, template).
With --settings, print the resolved process settings instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var v any
			if settings {
				s, _, err := opts.settings(cmd)
				if err != nil {
					return err
				}
				v = s
			} else {
				cfg, err := opts.loadConfiguration(cmd)
				if err != nil {
					return err
				}
				v = cfg
			}
			return dump(cmd.OutOrStdout(), v, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json | yaml")
	cmd.Flags().BoolVar(&settings, "settings", false, "dump process settings instead of stored data")
	return cmd
}

// dump goes through JSON first so both formats share the json field names.
func dump(w io.Writer, v any, format string) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	switch strings.ToLower(format) {
	case "json":
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml", "yml":
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}

func (o *rootOptions) loadConfiguration(cmd *cobra.Command) (*store.Configuration, error) {
	settings, logger, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}
	a := newApp(settings, logger, o.getenv)
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), configLoadTimeout)
	defer cancel()
	return a.loader.Load(ctx), nil
}
