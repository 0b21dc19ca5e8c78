// Command migrate applies, rolls back or resets the embedded schema migrations.
//
//	migrate up
//	migrate down -steps 1
//	migrate reset
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reurl/reurl/internal/migrate"
	"github.com/reurl/reurl/migrations"
)

func main() {
	_ = godotenv.Load() // .env is optional

	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		steps       = flag.Int("steps", 1, "Number of migrations to roll back (down only)")
		timeout     = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	)
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [flags] up|down|reset")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, flag.Arg(0), *databaseURL, *steps, logger); err != nil {
		logger.Error("migration failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command, databaseURL string, steps int, logger *slog.Logger) error {
	switch command {
	case "up", "down", "reset":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	db, err := migrate.Open(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	runner, err := migrate.New(db, migrations.FS, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer runner.Close()

	switch command {
	case "up":
		n, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "count", n)
	case "down":
		n, err := runner.Down(ctx, steps)
		if err != nil {
			return err
		}
		logger.Info("migrations rolled back", "count", n)
	case "reset":
		if err := runner.Reset(ctx); err != nil {
			return err
		}
		logger.Info("schema reset")
	}
	return nil
}
