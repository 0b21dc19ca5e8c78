// Package testutil holds helpers shared by database and Redis backed tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/reurl/reurl/internal/migrate"
	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/migrations"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 734201

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetSchema reverts and reapplies every embedded migration.
func ResetSchema(ctx context.Context, databaseURL string) error {
	db, err := migrate.Open(ctx, databaseURL)
	if err != nil {
		return err
	}

	runner, err := migrate.New(db, migrations.FS, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		_ = db.Close()
		return err
	}
	defer runner.Close()

	return runner.Reset(ctx)
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ============================================================================
// Test Data Factories
// ============================================================================

var aliasSeq atomic.Int64

// NewTestLink creates a public, non-expiring link owned by userID.
func NewTestLink(t testing.TB, userID, alias string) *model.Link {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Link{
		ID:          uuid.NewString(),
		UserID:      userID,
		Alias:       alias,
		Destination: "https://example.com/" + alias,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewTestLinkWithExpiry creates a test link with an expiry time.
func NewTestLinkWithExpiry(t testing.TB, userID, alias string, expiresAt time.Time) *model.Link {
	t.Helper()
	link := NewTestLink(t, userID, alias)
	link.ExpiresAt = &expiresAt
	return link
}

// NewTestVisit creates a visit for linkID at ts.
func NewTestVisit(t testing.TB, linkID, ip string, ts time.Time) *model.Visit {
	t.Helper()
	return &model.Visit{
		ID:         fmt.Sprintf("visit-%s", uuid.NewString()),
		LinkID:     linkID,
		VisitorIP:  ip,
		UserAgent:  "Mozilla/5.0",
		DeviceType: model.DeviceDesktop,
		Browser:    "Firefox",
		Country:    model.Unknown,
		City:       model.Unknown,
		Timestamp:  ts,
	}
}

// UniqueAlias generates an alias that is unique within the test process.
func UniqueAlias(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, aliasSeq.Add(1))
}

// UniqueSubject generates a unique identity subject for tests.
func UniqueSubject(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}
