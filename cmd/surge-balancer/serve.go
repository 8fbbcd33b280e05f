package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/surge-balancer/internal/config"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin dashboard and the profile endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, settings, logger, opts.getenv)
		},
	}
}

func serve(ctx context.Context, settings *config.Config, logger *slog.Logger, getenv func(string) string) error {
	a := newApp(settings, logger, getenv)
	defer a.Close()

	for _, w := range a.loader.Load(ctx).Warnings {
		logger.Warn("configuration warning", "warning", w)
	}

	sched, err := startCheckScheduler(ctx, settings.Check.Cron, a.admin, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              settings.Listen,
		Handler:           a.handler,
		ReadHeaderTimeout: settings.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	logger.Info("listening", "addr", "http://"+settings.Listen)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), settings.ShutdownTimeout)
		defer cancel()
		if sched != nil {
			select {
			case <-sched.Stop().Done():
			case <-shCtx.Done():
			}
		}
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warn("graceful shutdown failed", "err", err)
			_ = srv.Close()
		}

		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if sched != nil {
			sched.Stop()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
