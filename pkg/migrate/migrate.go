package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir holds the Postgres schema for splits, events and the reporting views.
const DefaultDir = "pkg/migrate/migrations"

// The SQL files target Postgres; sqlite is schema'd through AutoMigrateModels.
const dialect = "postgres"

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return nil
}

// Run executes a goose command (up, down, status, ...) against db.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to target. Target must be a
// shipped migration version, or 0 to roll everything back.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, target string) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	migrations, err := ValidateDir(dir)
	if err != nil {
		return err
	}
	version, err := resolveTarget(migrations, target)
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}
	switch {
	case current < version:
		err = goose.UpToContext(ctx, db, dir, version)
	case current > version:
		err = goose.DownToContext(ctx, db, dir, version)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

func resolveTarget(migrations []Migration, target string) (int64, error) {
	if target == "" {
		return 0, fmt.Errorf("target version is required")
	}
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || version < 0 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS or 0)", target)
	}
	if version == 0 {
		return 0, nil
	}
	for _, m := range migrations {
		if m.Version == target {
			return version, nil
		}
	}
	return 0, fmt.Errorf("version %s is not a shipped migration", target)
}
