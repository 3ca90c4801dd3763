package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fulfillment-backend/internal/cron"
	"github.com/angelmondragon/fulfillment-backend/pkg/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

const (
	serviceKind    = "cron-worker"
	lockNameFormat = "cron-worker:%s"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, logg, err := bootstrap.Start(serviceKind)
	if err != nil {
		bootstrap.Exit(ctx, nil, logg, "failed to load config", err)
	}
	ctx = app.Context(ctx)

	service, err := newCronService(ctx, app)
	if err != nil {
		bootstrap.Exit(ctx, app, logg, "failed to start cron worker", err)
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		bootstrap.Exit(ctx, app, logg, "cron worker stopped unexpectedly", err)
	}
	app.Shutdown(ctx)
	logg.Info(ctx, "cron worker shut down")
}

func newCronService(ctx context.Context, app *bootstrap.App) (*cron.Service, error) {
	cfg := app.Config
	dbClient, err := app.OpenDB(ctx)
	if err != nil {
		return nil, err
	}
	redisClient, err := app.OpenRedis(ctx)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}
	jobs, err := buildJobs(cfg, app.Logger, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("build jobs: %w", err)
	}
	registry := cron.NewRegistry(jobs...)
	app.Logger.Info(app.Logger.WithField(ctx, "jobs", registry.Names()), "cron jobs registered")

	return cron.NewService(cron.ServiceParams{
		Logger:   app.Logger,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
