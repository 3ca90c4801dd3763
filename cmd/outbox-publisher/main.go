package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fulfillment-backend/pkg/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/registry"
	"github.com/angelmondragon/fulfillment-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, logg, err := bootstrap.Start(serviceKind)
	if err != nil {
		bootstrap.Exit(ctx, nil, logg, "failed to load config", err)
	}
	ctx = app.Context(ctx)

	service, err := newPublisherService(ctx, app)
	if err != nil {
		bootstrap.Exit(ctx, app, logg, "failed to start outbox publisher", err)
	}

	logg.Info(ctx, "starting outbox publisher")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		bootstrap.Exit(ctx, app, logg, "outbox publisher stopped unexpectedly", err)
	}
	app.Shutdown(ctx)
	logg.Info(ctx, "outbox publisher shut down")
}

func newPublisherService(ctx context.Context, app *bootstrap.App) (*Service, error) {
	cfg := app.Config
	dbClient, err := app.OpenDB(ctx)
	if err != nil {
		return nil, err
	}
	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, app.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap pubsub: %w", err)
	}
	app.OnClose("pubsub", pubsubClient.Close)

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return nil, fmt.Errorf("event registry: %w", err)
	}
	app.Logger.Info(app.Logger.WithField(ctx, "topics", eventRegistry.Topics()), "outbox routes registered")
	return NewService(ServiceParams{
		Config:        cfg.Outbox,
		Logger:        app.Logger,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
}
