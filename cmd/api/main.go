package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/fulfillment-backend/api/routes"
	"github.com/angelmondragon/fulfillment-backend/pkg/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/pkg/env"
)

const (
	serviceKind       = "api"
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, logg, err := bootstrap.Start(serviceKind)
	if err != nil {
		bootstrap.Exit(ctx, nil, logg, "failed to load config", err)
	}
	ctx = app.Context(ctx)

	server, err := newServer(ctx, app)
	if err != nil {
		bootstrap.Exit(ctx, app, logg, "failed to start api", err)
	}
	ctx = logg.WithField(ctx, "addr", server.Addr)

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			bootstrap.Exit(ctx, app, logg, "api server stopped unexpectedly", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}
	app.Shutdown(context.WithoutCancel(ctx))
	logg.Info(context.WithoutCancel(ctx), "api server stopped")
}

func newServer(ctx context.Context, app *bootstrap.App) (*http.Server, error) {
	dbClient, err := app.OpenDB(ctx)
	if err != nil {
		return nil, err
	}
	redisClient, err := app.OpenRedis(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps, err := buildRouterDeps(ctx, app.Config, app.Logger, dbClient, redisClient, reg)
	if err != nil {
		return nil, fmt.Errorf("wire services: %w", err)
	}
	return &http.Server{
		Addr:              ":" + env.Port(app.Config.App.Port),
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}, nil
}
