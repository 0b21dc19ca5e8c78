package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/metrics"
	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/internal/repository"
)

func TestCreateLink_GeneratedAlias(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestLinkService(store, nil, nil)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{UserID: "u-1", URL: "example.com/page"})
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	if len(link.Alias) != aliasLength || !aliasCharset.MatchString(link.Alias) {
		t.Errorf("unexpected generated alias %q", link.Alias)
	}
	if link.Destination != "https://example.com/page" {
		t.Errorf("Destination = %q, want https://example.com/page", link.Destination)
	}
	if _, err := uuid.Parse(link.ID); err != nil {
		t.Errorf("ID %q is not a UUID", link.ID)
	}
	if link.HasPassword() || link.ExpiresAt != nil {
		t.Errorf("unexpected gate or expiry: %+v", link)
	}
	if store.links[link.Alias] == nil {
		t.Error("link was not stored")
	}
	if got := svc.ShortLink(link.Alias); got != "https://reurl.test/"+link.Alias {
		t.Errorf("ShortLink = %q", got)
	}
}

func TestCreateLink_CustomSlug(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestLinkService(store, nil, nil)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{UserID: "u-1", URL: "https://example.com", CustomSlug: "My_Link-1"})
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if link.Alias != "My_Link-1" {
		t.Errorf("Alias = %q, want My_Link-1", link.Alias)
	}

	// Taken slug is rejected, not retried.
	_, err = svc.CreateLink(ctx, CreateLinkInput{UserID: "u-2", URL: "https://other.example", CustomSlug: "My_Link-1"})
	if !errors.Is(err, ErrAliasExists) {
		t.Fatalf("expected ErrAliasExists, got %v", err)
	}
	if store.links["My_Link-1"].UserID != "u-1" {
		t.Error("original link must be untouched")
	}
}

func TestCreateLink_ValidationErrors(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	now := time.Now()

	tests := []struct {
		name    string
		input   CreateLinkInput
		wantErr error
	}{
		{"empty url", CreateLinkInput{URL: "   "}, ErrInvalidDestination},
		{"unsupported scheme", CreateLinkInput{URL: "ftp://example.com"}, ErrInvalidDestination},
		{"too long url", CreateLinkInput{URL: "https://example.com/" + strings.Repeat("a", maxDestinationLength)}, ErrURLTooLong},
		{"short slug", CreateLinkInput{URL: "example.com", CustomSlug: "ab"}, ErrInvalidAlias},
		{"bad slug chars", CreateLinkInput{URL: "example.com", CustomSlug: "no/slash"}, ErrInvalidAlias},
		{"reserved slug", CreateLinkInput{URL: "example.com", CustomSlug: "API"}, ErrReservedAlias},
		{"expiry in past", CreateLinkInput{URL: "example.com", ExpiresAt: &past}, ErrExpiresInPast},
		{"expiry now", CreateLinkInput{URL: "example.com", ExpiresAt: &now}, ErrExpiresInPast},
		{"long password", CreateLinkInput{URL: "example.com", Password: strings.Repeat("p", maxPasswordLength+1)}, ErrPasswordTooLong},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			svc := newTestLinkService(store, nil, nil)
			svc.now = func() time.Time { return now }

			_, err := svc.CreateLink(context.Background(), tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if len(store.links) != 0 {
				t.Error("invalid input must not be stored")
			}
		})
	}
}

func TestCreateLink_RetriesGeneratedAliasOnCollision(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.links["taken1"] = &model.Link{ID: "existing", Alias: "taken1"}
	rec := metrics.NewInMemory()
	svc := newTestLinkService(store, nil, rec)
	svc.newAlias = aliasSequence("taken1", "readyz", "fresh1")

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{UserID: "u-1", URL: "example.com"})
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if link.Alias != "fresh1" {
		t.Errorf("Alias = %q, want fresh1", link.Alias)
	}
	if got := rec.Snapshot().AliasCollisions; got != 1 {
		t.Errorf("AliasCollisions = %d, want 1", got)
	}
}

func TestCreateLink_AliasExhausted(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.links["always"] = &model.Link{ID: "existing", Alias: "always"}
	rec := metrics.NewInMemory()
	svc := newTestLinkService(store, nil, rec)
	svc.newAlias = aliasSequence("always")

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{UserID: "u-1", URL: "example.com"})
	if !errors.Is(err, ErrAliasExhausted) {
		t.Fatalf("expected ErrAliasExhausted, got %v", err)
	}
	if got := rec.Snapshot().AliasCollisions; got != maxAliasAttempts {
		t.Errorf("AliasCollisions = %d, want %d", got, maxAliasAttempts)
	}
}

func TestCreateLink_HashesPassword(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestLinkService(store, nil, nil)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{UserID: "u-1", URL: "example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}

	stored := store.links[link.Alias]
	if stored.PasswordHash == "" || stored.PasswordHash == "s3cret" {
		t.Fatalf("password must be stored hashed, got %q", stored.PasswordHash)
	}
	ok, err := auth.VerifyPassword("s3cret", stored.PasswordHash)
	if err != nil || !ok {
		t.Errorf("stored hash does not verify (ok=%v err=%v)", ok, err)
	}
}

func TestCreateLink_InvalidatesNegativeCache(t *testing.T) {
	t.Parallel()

	c := newFakeCache()
	c.negative["promo"] = true
	svc := newTestLinkService(newFakeStore(), c, nil)

	if _, err := svc.CreateLink(context.Background(), CreateLinkInput{UserID: "u-1", URL: "example.com", CustomSlug: "promo"}); err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if c.negative["promo"] {
		t.Error("negative cache entry should be cleared on create")
	}
}

func TestCreateLink_DatabaseUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.createErrs = []error{fmt.Errorf("create link: %w: dial tcp: refused", repository.ErrUnavailable)}
	svc := newTestLinkService(store, nil, nil)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{UserID: "u-1", URL: "example.com"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestListLinks_ClampsLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit int
		want  int
	}{
		{0, defaultListLimit},
		{-5, defaultListLimit},
		{1, 1},
		{50, 50},
		{100, 100},
		{1000, maxListLimit},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("limit_%d", tt.limit), func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			svc := newTestLinkService(store, nil, nil)
			if _, err := svc.ListLinks(context.Background(), "u-1", tt.limit); err != nil {
				t.Fatalf("ListLinks failed: %v", err)
			}
			if store.lastLimit != tt.want {
				t.Errorf("store limit = %d, want %d", store.lastLimit, tt.want)
			}
		})
	}
}

func TestListLinks_NewestFirstWithClicks(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestLinkService(store, nil, nil)
	base := time.Now()

	for i, alias := range []string{"first", "second", "third"} {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		if _, err := svc.CreateLink(context.Background(), CreateLinkInput{UserID: "u-1", URL: "example.com", CustomSlug: alias}); err != nil {
			t.Fatalf("CreateLink failed: %v", err)
		}
	}
	store.visits = append(store.visits, &model.Visit{LinkID: store.links["first"].ID})

	links, err := svc.ListLinks(context.Background(), "u-1", 0)
	if err != nil {
		t.Fatalf("ListLinks failed: %v", err)
	}
	if len(links) != 3 || links[0].Alias != "third" || links[2].Alias != "first" {
		t.Fatalf("unexpected order: %+v", links)
	}
	if links[2].Clicks != 1 {
		t.Errorf("Clicks = %d, want 1", links[2].Clicks)
	}
}

func TestDeleteLink(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	c := newFakeCache()
	rec := metrics.NewInMemory()
	svc := newTestLinkService(store, c, rec)
	ctx := context.Background()

	link, err := svc.CreateLink(ctx, CreateLinkInput{UserID: "owner", URL: "example.com", CustomSlug: "bye"})
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	store.visits = append(store.visits, &model.Visit{LinkID: link.ID}, &model.Visit{LinkID: link.ID})
	c.links["bye"] = link

	tests := []struct {
		name   string
		userID string
		id     string
	}{
		{"malformed id", "owner", "not-a-uuid"},
		{"unknown id", "owner", uuid.NewString()},
		{"someone else's link", "intruder", link.ID},
	}
	for _, tt := range tests {
		if err := svc.DeleteLink(ctx, tt.userID, tt.id); !errors.Is(err, ErrLinkNotFound) {
			t.Errorf("%s: expected ErrLinkNotFound, got %v", tt.name, err)
		}
	}
	if store.links["bye"] == nil {
		t.Fatal("failed deletes must not remove the link")
	}

	if err := svc.DeleteLink(ctx, "owner", link.ID); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if store.links["bye"] != nil {
		t.Error("link still stored after delete")
	}
	if n := store.visitCount(link.ID); n != 0 {
		t.Errorf("expected analytics rows removed, %d remain", n)
	}
	if _, cached := c.links["bye"]; cached {
		t.Error("cache entry should be invalidated on delete")
	}
	if !c.negative["bye"] {
		t.Error("deleted alias should be tombstoned in the cache")
	}
	if got := rec.Snapshot().LinksDeleted; got != 1 {
		t.Errorf("LinksDeleted = %d, want 1", got)
	}
}
