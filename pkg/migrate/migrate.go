package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the migrations directory relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

const (
	dialect     = "postgres"
	embeddedDir = "migrations"
)

//go:embed migrations/*.sql
var embedded embed.FS

// prepare points goose at the embedded migrations when dir is DefaultDir, so a
// deployed binary can migrate without the source tree, and at the filesystem
// otherwise.
func prepare(db *sql.DB, dir string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("db is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	switch dir {
	case "":
		return "", fmt.Errorf("dir is required")
	case DefaultDir:
		goose.SetBaseFS(embedded)
		return embeddedDir, nil
	default:
		goose.SetBaseFS(nil)
		return dir, nil
	}
}

// Run executes a goose command (up, down, status, redo, ...) against db.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	source, err := prepare(db, dir)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, source, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down until targetVersion is the
// latest applied migration.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil || len(targetVersion) != len(versionLayout) {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", targetVersion)
	}
	source, err := prepare(db, dir)
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, source, target)
	case current > target:
		err = goose.DownToContext(ctx, db, source, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}
