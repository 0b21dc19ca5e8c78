// Package migrate applies the embedded SQL migrations to PostgreSQL with
// golang-migrate. It runs over database/sql with the lib/pq driver so it
// can be used from the migrate command without starting the pgx pool.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

// ErrInvalidMigrationSet is returned when the migration files are inconsistent.
var ErrInvalidMigrationSet = errors.New("invalid migration set")

// Open connects to PostgreSQL through lib/pq and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", describe(err))
	}
	return db, nil
}

// Runner applies migrations and records them in schema_migrations.
// It takes ownership of db; Close releases it.
type Runner struct {
	m        *migrate.Migrate
	logger   *slog.Logger
	versions []uint
}

// New creates a Runner for the *.up.sql / *.down.sql pairs found in fsys.
func New(db *sql.DB, fsys fs.FS, logger *slog.Logger) (*Runner, error) {
	versions, err := Versions(fsys)
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("open migration driver: %w", describe(err))
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}

	logger = logger.With("component", "migrate")
	m.Log = migrateLogger{logger: logger}

	return &Runner{m: m, logger: logger, versions: versions}, nil
}

// Versions lists the migration versions in fsys in ascending order.
// Every version must ship both its up and down script.
func Versions(fsys fs.FS) ([]uint, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMigrationSet, err)
	}
	defer src.Close()

	var versions []uint
	v, err := src.First()
	for err == nil {
		if err := checkPair(src, v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: no migrations found", ErrInvalidMigrationSet)
	}
	return versions, nil
}

// checkPair fails unless version v has both an up and a down script.
func checkPair(src source.Driver, v uint) error {
	for _, read := range []func(uint) (io.ReadCloser, string, error){src.ReadUp, src.ReadDown} {
		rc, _, err := read(v)
		if err != nil {
			return fmt.Errorf("%w: version %d is missing its up or down file", ErrInvalidMigrationSet, v)
		}
		_ = rc.Close()
	}
	return nil
}

// Up applies every pending migration and returns how many were applied.
func (r *Runner) Up(ctx context.Context) (int, error) {
	before, err := r.applied()
	if err != nil {
		return 0, err
	}

	stop := r.stopOnCancel(ctx)
	defer stop()

	if err := r.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", describe(err))
	}

	after, err := r.applied()
	if err != nil {
		return 0, err
	}
	return after - before, nil
}

// Down reverts up to steps applied migrations, newest first.
// A steps value <= 0 reverts everything.
func (r *Runner) Down(ctx context.Context, steps int) (int, error) {
	applied, err := r.applied()
	if err != nil {
		return 0, err
	}
	if applied == 0 {
		return 0, nil
	}
	if steps <= 0 || steps > applied {
		steps = applied
	}

	stop := r.stopOnCancel(ctx)
	defer stop()

	if err := r.m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("revert migrations: %w", describe(err))
	}

	remaining, err := r.applied()
	if err != nil {
		return 0, err
	}
	return applied - remaining, nil
}

// Reset reverts all migrations and applies them again.
func (r *Runner) Reset(ctx context.Context) error {
	if _, err := r.Down(ctx, 0); err != nil {
		return err
	}
	_, err := r.Up(ctx)
	return err
}

// Close releases the migration source and the database handle.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

// applied counts the known migrations at or below the recorded version.
func (r *Runner) applied() (int, error) {
	current, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", describe(err))
	}
	if dirty {
		return 0, fmt.Errorf("schema version %d is dirty; fix it by hand and force the version", current)
	}
	return countUpTo(r.versions, current), nil
}

// stopOnCancel asks golang-migrate to stop after the running migration
// when ctx is cancelled. The returned func must be called when done.
func (r *Runner) stopOnCancel(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.logger.Warn("migration interrupted", "error", ctx.Err())
			select {
			case r.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

func countUpTo(versions []uint, current uint) int {
	n := 0
	for _, v := range versions {
		if v <= current {
			n++
		}
	}
	return n
}

// migrateLogger routes golang-migrate's progress lines into slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool { return false }

// describe adds the SQLSTATE to PostgreSQL errors for easier diagnosis.
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (sqlstate %s)", err, pqErr.Code)
	}
	return err
}
