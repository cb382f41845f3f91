package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/tipsplit-backend/pkg/config"
	"github.com/angelmondragon/tipsplit-backend/pkg/db"
	"github.com/angelmondragon/tipsplit-backend/pkg/logger"
	"github.com/angelmondragon/tipsplit-backend/pkg/migrate"
)

// command runs against an open database. Commands are listed in usage order.
type command struct {
	name  string
	usage string
	run   func(ctx context.Context, sqlDB *sql.DB, dir string, args []string) error
}

var commands = []command{
	{"up", "apply all pending migrations", func(ctx context.Context, sqlDB *sql.DB, dir string, _ []string) error {
		return migrate.Run(ctx, sqlDB, dir, "up")
	}},
	{"down", "roll back the latest migration", func(ctx context.Context, sqlDB *sql.DB, dir string, _ []string) error {
		return migrate.Run(ctx, sqlDB, dir, "down")
	}},
	{"status", "print applied and pending migrations", func(ctx context.Context, sqlDB *sql.DB, dir string, _ []string) error {
		return migrate.Run(ctx, sqlDB, dir, "status")
	}},
	{"version", "migrate up or down to a shipped <YYYYMMDDHHMMSS>, or 0", func(ctx context.Context, sqlDB *sql.DB, dir string, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("version requires exactly one target version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dir, args[0])
	}},
}

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "goose migrations directory")
	flag.Usage = usage
	flag.Parse()

	name := strings.TrimSpace(flag.Arg(0))
	if name == "" {
		name = "up"
	}
	if err := run(name, *dir, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", name, err)
		os.Exit(1)
	}
}

func run(name, dir string, args []string) error {
	if len(args) > 0 {
		args = args[1:]
	}

	// validate only reads files; it runs before any config or database is needed.
	migrations, err := migrate.ValidateDir(dir)
	if err != nil {
		return fmt.Errorf("invalid migrations: %w", err)
	}
	if name == "validate" {
		for _, m := range migrations {
			fmt.Printf("%s  %s  tables=%s\n", m.Version, m.File, strings.Join(m.Tables, ","))
		}
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		return fmt.Errorf("unknown command %q", name)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"cmd":        name,
		"dir":        dir,
		"migrations": len(migrations),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	logg.Info(ctx, "migrate ready")
	if err := cmd.run(ctx, sqlDB, dir, args); err != nil {
		logg.Error(ctx, "migration command failed", err)
		return err
	}
	logg.Info(ctx, "migration command complete")
	return nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [-dir path] <command> [args]")
	fmt.Fprintf(os.Stderr, "  %-8s %s\n", "validate", "check migration files without a database")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
}
