package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/John-Robertt/surge-balancer/internal/admin"
	"github.com/John-Robertt/surge-balancer/internal/store"
)

// startCheckScheduler checks every enabled subscription on spec (standard
// five-field cron or a descriptor such as "@every 1h"). An empty spec
// disables it and returns a nil scheduler.
func startCheckScheduler(ctx context.Context, spec string, svc *admin.Service, logger *slog.Logger) (*cron.Cron, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	cl := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(spec, func() { runScheduledCheck(ctx, svc, logger) }); err != nil {
		return nil, fmt.Errorf("invalid check cron %q: %w", spec, err)
	}
	c.Start()
	logger.Info("subscription check scheduled", "cron", spec)
	return c, nil
}

func runScheduledCheck(ctx context.Context, svc *admin.Service, logger *slog.Logger) {
	results, err := svc.CheckSubscriptions(ctx, nil)
	switch {
	case errors.Is(err, store.ErrReadOnly):
		logger.Debug("scheduled check skipped, storage is read-only")
	case err != nil:
		logger.Warn("scheduled subscription check failed", "err", err)
	default:
		logger.Info("scheduled subscription check done", "subscriptions", len(results))
	}
}
