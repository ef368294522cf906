package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/kevin07696/settlement-service/internal/adapters/postgres"
	"github.com/kevin07696/settlement-service/internal/app"
	"github.com/kevin07696/settlement-service/internal/config"
)

const (
	dialect       = "postgres"
	migrationsDir = "migrations"
)

var (
	flags = flag.NewFlagSet("migrate", flag.ExitOnError)
	dir   = flags.String("dir", "", "read migrations from this directory instead of the embedded set")
)

func main() {
	flags.Usage = usage
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) < 1 {
		flags.Usage()
		return
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := app.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	store, err := app.NewSecretStore(ctx, cfg.Secrets, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	dsn, err := app.DatabaseDSN(ctx, store, cfg.Database)
	if err != nil {
		log.Fatalf("failed to resolve database password: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := goose.SetDialect(dialect); err != nil {
		log.Fatalf("failed to set dialect: %v", err)
	}

	source := *dir
	if source == "" {
		goose.SetBaseFS(postgres.Migrations)
		source = migrationsDir
	}

	if err := goose.RunContext(ctx, command, db, source, args[1:]...); err != nil {
		log.Fatalf("goose %v: %v", command, err)
	}
}

func usage() {
	fmt.Print(`Usage: migrate [-dir DIR] COMMAND

Connection settings are read from the same DB_* and SECRETS_* variables as
the API server.

Commands:
    up                   Migrate the DB to the most recent version available
    up-by-one            Migrate the DB up by 1
    up-to VERSION        Migrate the DB to a specific VERSION
    down                 Roll back the version by 1
    down-to VERSION      Roll back to a specific VERSION
    redo                 Re-run the latest migration
    reset                Roll back all migrations
    status               Dump the migration status for the current DB
    version              Print the current version of the database
    create NAME sql      Creates new migration file (requires -dir)

Examples:
    migrate up
    migrate status
    migrate -dir internal/adapters/postgres/migrations create add_bonus_caps sql
`)
}
