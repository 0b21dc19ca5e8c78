//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/internal/testutil"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newTestRepository(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	repo, err := New(ctx, dbURL, Options{})
	if err != nil {
		t.Fatalf("connect to database: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		if err := unlock(); err != nil {
			t.Errorf("release db lock: %v", err)
		}
	})

	if err := testutil.ResetSchema(ctx, dbURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, repo
}

func newTestUser(t *testing.T, ctx context.Context, repo *Repository) *model.User {
	t.Helper()
	user, err := repo.EnsureUser(ctx, testutil.UniqueSubject("user"), "")
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	return user
}

func createTestLink(t *testing.T, ctx context.Context, repo *Repository, link *model.Link) {
	t.Helper()
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("CreateLink(%s) failed: %v", link.Alias, err)
	}
}

// ============================================================================
// Users
// ============================================================================

func TestIntegrationEnsureUser_IsIdempotent(t *testing.T) {
	ctx, repo := newTestRepository(t)

	first, err := repo.EnsureUser(ctx, "user_abc", "")
	if err != nil {
		t.Fatalf("EnsureUser failed: %v", err)
	}
	second, err := repo.EnsureUser(ctx, "user_abc", "a@example.com")
	if err != nil {
		t.Fatalf("EnsureUser (second) failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected same user id, got %s and %s", first.ID, second.ID)
	}
	if second.Email != "a@example.com" {
		t.Errorf("expected email to be stored, got %q", second.Email)
	}
}

// ============================================================================
// Links
// ============================================================================

func TestIntegrationCreateLink_DuplicateAlias(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := newTestUser(t, ctx, repo)

	alias := testutil.UniqueAlias("dup")
	createTestLink(t, ctx, repo, testutil.NewTestLink(t, user.ID, alias))

	err := repo.CreateLink(ctx, testutil.NewTestLink(t, user.ID, alias))
	if !errors.Is(err, ErrAliasExists) {
		t.Errorf("expected ErrAliasExists, got %v", err)
	}
}

func TestIntegrationGetActiveLinkByAlias(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := newTestUser(t, ctx, repo)

	active := testutil.NewTestLink(t, user.ID, "Active")
	active.PasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
	createTestLink(t, ctx, repo, active)
	createTestLink(t, ctx, repo, testutil.NewTestLinkWithExpiry(t, user.ID, "expired", time.Now().Add(-time.Minute)))
	createTestLink(t, ctx, repo, testutil.NewTestLinkWithExpiry(t, user.ID, "future", time.Now().Add(time.Hour)))

	got, err := repo.GetActiveLinkByAlias(ctx, "Active")
	if err != nil {
		t.Fatalf("GetActiveLinkByAlias failed: %v", err)
	}
	if got.ID != active.ID || got.Destination != active.Destination {
		t.Errorf("unexpected link: %+v", got)
	}
	if !got.HasPassword() {
		t.Error("expected password hash to round trip")
	}

	if _, err := repo.GetActiveLinkByAlias(ctx, "future"); err != nil {
		t.Errorf("future expiry should resolve, got %v", err)
	}

	for _, alias := range []string{"expired", "active", "missing"} {
		if _, err := repo.GetActiveLinkByAlias(ctx, alias); !errors.Is(err, ErrLinkNotFound) {
			t.Errorf("alias %q: expected ErrLinkNotFound, got %v", alias, err)
		}
	}
}

func TestIntegrationListLinksWithClicks(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := newTestUser(t, ctx, repo)
	other := newTestUser(t, ctx, repo)

	older := testutil.NewTestLink(t, user.ID, "older")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := testutil.NewTestLink(t, user.ID, "newer")
	createTestLink(t, ctx, repo, older)
	createTestLink(t, ctx, repo, newer)
	createTestLink(t, ctx, repo, testutil.NewTestLink(t, other.ID, "theirs"))

	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := repo.InsertVisit(ctx, testutil.NewTestVisit(t, older.ID, "203.0.113.1", now)); err != nil {
			t.Fatalf("InsertVisit failed: %v", err)
		}
	}

	links, err := repo.ListLinksWithClicks(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListLinksWithClicks failed: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(links))
	}
	if links[0].Alias != "newer" || links[1].Alias != "older" {
		t.Errorf("expected newest first, got %s, %s", links[0].Alias, links[1].Alias)
	}
	if links[0].Clicks != 0 || links[1].Clicks != 3 {
		t.Errorf("unexpected clicks: %d, %d", links[0].Clicks, links[1].Clicks)
	}

	limited, err := repo.ListLinksWithClicks(ctx, user.ID, 1)
	if err != nil {
		t.Fatalf("ListLinksWithClicks (limit) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d links", len(limited))
	}
}

func TestIntegrationDeleteLink(t *testing.T) {
	ctx, repo := newTestRepository(t)
	owner := newTestUser(t, ctx, repo)
	stranger := newTestUser(t, ctx, repo)

	link := testutil.NewTestLink(t, owner.ID, "gone")
	createTestLink(t, ctx, repo, link)
	if err := repo.InsertVisit(ctx, testutil.NewTestVisit(t, link.ID, "198.51.100.7", time.Now().UTC())); err != nil {
		t.Fatalf("InsertVisit failed: %v", err)
	}

	if _, err := repo.DeleteLink(ctx, link.ID, stranger.ID); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound for non-owner, got %v", err)
	}
	if _, err := repo.DeleteLink(ctx, uuid.NewString(), owner.ID); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound for unknown id, got %v", err)
	}

	deleted, err := repo.DeleteLink(ctx, link.ID, owner.ID)
	if err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if deleted.Alias != "gone" {
		t.Errorf("expected deleted alias 'gone', got %q", deleted.Alias)
	}

	if _, err := repo.GetActiveLinkByAlias(ctx, "gone"); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("deleted alias should not resolve, got %v", err)
	}

	var remaining int
	if err := repo.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM analytics WHERE link_id = $1`, link.ID).Scan(&remaining); err != nil {
		t.Fatalf("count analytics: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected analytics rows to be removed, found %d", remaining)
	}
}

// ============================================================================
// Statistics
// ============================================================================

func TestIntegrationDashboardStats(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := newTestUser(t, ctx, repo)

	empty, err := repo.GetDashboardStats(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetDashboardStats (empty) failed: %v", err)
	}
	if empty.TotalLinks != 0 || empty.TopPerformingLink != nil {
		t.Errorf("unexpected stats for new user: %+v", empty)
	}

	popular := testutil.NewTestLink(t, user.ID, "popular")
	stale := testutil.NewTestLink(t, user.ID, "stale")
	quiet := testutil.NewTestLink(t, user.ID, "quiet")
	for _, l := range []*model.Link{popular, stale, quiet} {
		createTestLink(t, ctx, repo, l)
	}

	now := time.Now().UTC()
	visits := []*model.Visit{
		testutil.NewTestVisit(t, popular.ID, "203.0.113.1", now),
		testutil.NewTestVisit(t, popular.ID, "203.0.113.2", now),
		testutil.NewTestVisit(t, popular.ID, "203.0.113.3", now.Add(-40*24*time.Hour)),
		testutil.NewTestVisit(t, stale.ID, "203.0.113.1", now.Add(-45*24*time.Hour)),
	}
	for _, v := range visits {
		if err := repo.InsertVisit(ctx, v); err != nil {
			t.Fatalf("InsertVisit failed: %v", err)
		}
	}

	stats, err := repo.GetDashboardStats(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetDashboardStats failed: %v", err)
	}
	if stats.TotalLinks != 3 {
		t.Errorf("TotalLinks = %d, want 3", stats.TotalLinks)
	}
	if stats.TotalClicks != 4 {
		t.Errorf("TotalClicks = %d, want 4", stats.TotalClicks)
	}
	if stats.ActiveLinks != 1 {
		t.Errorf("ActiveLinks = %d, want 1", stats.ActiveLinks)
	}
	if stats.TopPerformingLink == nil || stats.TopPerformingLink.ShortURL != "popular" || stats.TopPerformingLink.Clicks != 3 {
		t.Errorf("unexpected top link: %+v", stats.TopPerformingLink)
	}
}

func TestIntegrationAnalyticsReport(t *testing.T) {
	ctx, repo := newTestRepository(t)
	user := newTestUser(t, ctx, repo)
	link := testutil.NewTestLink(t, user.ID, "report")
	createTestLink(t, ctx, repo, link)

	now := time.Now().UTC()
	mobile := testutil.NewTestVisit(t, link.ID, "203.0.113.1", now)
	mobile.DeviceType = model.DeviceMobile
	mobile.Country = "DE"
	mobile.Referer = "https://news.example.org/item?id=1"

	desktop := testutil.NewTestVisit(t, link.ID, "203.0.113.1", now)
	desktop.Country = "DE"

	other := testutil.NewTestVisit(t, link.ID, "203.0.113.9", now)
	other.Country = "US"

	old := testutil.NewTestVisit(t, link.ID, "203.0.113.50", now.Add(-10*24*time.Hour))

	for _, v := range []*model.Visit{mobile, desktop, other, old} {
		if err := repo.InsertVisit(ctx, v); err != nil {
			t.Fatalf("InsertVisit failed: %v", err)
		}
	}

	report, err := repo.GetAnalyticsReport(ctx, user.ID, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("GetAnalyticsReport failed: %v", err)
	}

	if report.TotalClicks != 3 {
		t.Errorf("TotalClicks = %d, want 3", report.TotalClicks)
	}
	if report.UniqueVisitors != 2 {
		t.Errorf("UniqueVisitors = %d, want 2", report.UniqueVisitors)
	}
	if len(report.TopCountries) != 2 || report.TopCountries[0] != (model.CountryVisits{Country: "DE", Visits: 2}) {
		t.Errorf("unexpected countries: %+v", report.TopCountries)
	}
	if len(report.TopDevices) != 2 || report.TopDevices[0].Device != model.DeviceDesktop {
		t.Errorf("unexpected devices: %+v", report.TopDevices)
	}
	if len(report.TopReferrers) != 2 || report.TopReferrers[0] != (model.RefererVisits{Referer: "(direct)", Visits: 2}) {
		t.Errorf("unexpected referrers: %+v", report.TopReferrers)
	}
	if report.TopReferrers[1].Referer != "news.example.org" {
		t.Errorf("expected referer host, got %q", report.TopReferrers[1].Referer)
	}
	if len(report.ClicksByDay) != 1 || report.ClicksByDay[0].Clicks != 3 {
		t.Errorf("unexpected daily clicks: %+v", report.ClicksByDay)
	}
}
