// Package bootstrap holds the boot sequence shared by every binary: env file,
// config, leveled logger, then the datastores the binary asks for. Resources
// are closed in reverse order of opening.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/fulfillment-backend/pkg/config"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/env"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
	"github.com/angelmondragon/fulfillment-backend/pkg/redis"
)

type closer struct {
	name string
	fn   func() error
}

// App is a booted binary.
type App struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger

	closers []closer
}

// Start loads .env (optional) and the environment config, then rebuilds the
// logger at the configured level. On error the returned logger is still
// usable for the final log line.
func Start(kind string) (*App, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind

	logg = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Fields:      map[string]any{"instance": env.InstanceID()},
	})
	return &App{Kind: kind, Config: cfg, Logger: logg}, logg, nil
}

// Context returns ctx tagged with the environment and service kind.
func (a *App) Context(ctx context.Context) context.Context {
	return a.Logger.WithFields(ctx, map[string]any{
		"env":         a.Config.App.Env,
		"serviceKind": a.Kind,
	})
}

// OnClose registers fn to run during Close.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// OpenDB connects to the database and, in dev with auto-migrate on, applies
// pending migrations.
func (a *App) OpenDB(ctx context.Context) (*db.Client, error) {
	client, err := db.New(ctx, a.Config.DB, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap database: %w", err)
	}
	a.OnClose("database", client.Close)

	if err := migrate.MaybeRunDev(ctx, a.Config, a.Logger, client); err != nil {
		return nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, nil
}

func (a *App) OpenRedis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, a.Config.Redis, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	a.OnClose("redis", client.Close)
	return client, nil
}

// Close releases resources last-opened first and returns every failure.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errs
}

// Exit logs the failure that stopped the binary and exits non-zero after
// releasing what was opened.
func Exit(ctx context.Context, app *App, logg *logger.Logger, msg string, err error) {
	if app != nil {
		if closeErr := app.Close(); closeErr != nil {
			logg.WarnErr(ctx, "shutdown cleanup failed", closeErr)
		}
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

// Shutdown closes resources after a clean stop.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Close(); err != nil {
		a.Logger.Error(ctx, "error closing resources", err)
	}
}
