package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/fulfillment-backend/pkg/bootstrap"
	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/migrate"
)

type dbCommand func(ctx context.Context, sqlDB *sql.DB, dir string) error

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	name := flag.String("name", "", "migration name (for create)")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	app, logg, err := bootstrap.Start("migrate")
	requireResource(context.Background(), logg, "config", err)
	cfg := app.Config
	ctx := logg.WithFields(app.Context(context.Background()), map[string]any{
		"cmd": *cmd,
		"dir": *dir,
	})

	switch *cmd {
	case "create":
		if *name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	commands := map[string]dbCommand{
		"up":     gooseCommand("up"),
		"down":   gooseCommand("down"),
		"status": gooseCommand("status"),
		"version": func(ctx context.Context, sqlDB *sql.DB, dir string) error {
			if *version == "" {
				return fmt.Errorf("missing -version for version command")
			}
			return migrate.MigrateToVersion(ctx, sqlDB, dir, *version)
		},
	}
	run, ok := commands[*cmd]
	if !ok {
		fail("unknown -cmd value: %s", *cmd)
	}

	// db.New rather than app.OpenDB: the dev auto-migrate hook must not run here.
	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	app.OnClose("database", dbClient.Close)
	defer app.Shutdown(ctx)

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	logg.Info(ctx, "migrate ready")
	if err := run(ctx, sqlDB, *dir); err != nil {
		bootstrap.Exit(ctx, app, logg, "migration command failed", err)
	}
	logg.Info(ctx, "migration command finished")
}

func gooseCommand(name string) dbCommand {
	return func(ctx context.Context, sqlDB *sql.DB, dir string) error {
		return migrate.Run(ctx, sqlDB, dir, name)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
