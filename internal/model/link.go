// Package model defines domain entities for the application.
package model

import (
	"strconv"
	"time"
)

// Link represents a shortened URL owned by a user.
type Link struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Alias       string `json:"short_url"`
	Destination string `json:"original_url"`

	// PasswordHash is an Argon2id PHC string, empty when the link is public.
	PasswordHash string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasPassword reports whether the link is behind the access gate.
func (l *Link) HasPassword() bool {
	return l.PasswordHash != ""
}

// IsExpired reports whether the link expired at or before now.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// LinkWithClicks is a link together with its click count computed at read time.
type LinkWithClicks struct {
	Link
	Clicks int64 `json:"clicks"`
}

// CachedLink represents link data stored in the Redis cache.
// Uses string types for Redis hash compatibility.
type CachedLink struct {
	ID           string `redis:"id"`
	UserID       string `redis:"user_id"`
	Destination  string `redis:"destination"`
	PasswordHash string `redis:"password_hash"`
	ExpiresAt    string `redis:"expires_at"` // Unix seconds or empty
	CreatedAt    string `redis:"created_at"` // Unix seconds
}

// ToLink converts a CachedLink back to a Link.
func (c *CachedLink) ToLink(alias string) *Link {
	link := &Link{
		ID:           c.ID,
		UserID:       c.UserID,
		Alias:        alias,
		Destination:  c.Destination,
		PasswordHash: c.PasswordHash,
	}

	if c.ExpiresAt != "" {
		if ts, err := strconv.ParseInt(c.ExpiresAt, 10, 64); err == nil {
			t := time.Unix(ts, 0).UTC()
			link.ExpiresAt = &t
		}
	}

	if c.CreatedAt != "" {
		if ts, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
			link.CreatedAt = time.Unix(ts, 0).UTC()
		}
	}

	return link
}

// ToCachedLink converts a Link to its cache representation.
func (l *Link) ToCachedLink() *CachedLink {
	cached := &CachedLink{
		ID:           l.ID,
		UserID:       l.UserID,
		Destination:  l.Destination,
		PasswordHash: l.PasswordHash,
		CreatedAt:    strconv.FormatInt(l.CreatedAt.Unix(), 10),
	}

	if l.ExpiresAt != nil {
		cached.ExpiresAt = strconv.FormatInt(l.ExpiresAt.Unix(), 10)
	}

	return cached
}
