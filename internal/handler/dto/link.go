// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/reurl/reurl/internal/model"
)

// CreateLinkRequest represents the request body for POST /api/shorten.
// ExpiresAt stays a string so a malformed timestamp surfaces as a
// validation message rather than a JSON decode failure.
type CreateLinkRequest struct {
	URL        string `json:"url" validate:"required,max=2048"`
	CustomSlug string `json:"customSlug" validate:"omitempty,min=3,max=32,alias"`
	ExpiresAt  string `json:"expiresAt" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Password   string `json:"password" validate:"omitempty,max=128"`
}

// ExpiryTime parses ExpiresAt. It must only be called after validation.
func (r *CreateLinkRequest) ExpiryTime() (*time.Time, error) {
	if r.ExpiresAt == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	ID                string     `json:"id"`
	ShortURL          string     `json:"short_url"`
	OriginalURL       string     `json:"original_url"`
	ShortLink         string     `json:"short_link"`
	PasswordProtected bool       `json:"password_protected"`
	ExpiresAt         *time.Time `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// LinkListItem is a LinkResponse with its click count.
type LinkListItem struct {
	LinkResponse
	Clicks int64 `json:"clicks"`
}

// DeleteResponse acknowledges a deletion.
type DeleteResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToLinkResponse converts a Link model to LinkResponse DTO.
func ToLinkResponse(link *model.Link, baseURL string) LinkResponse {
	return LinkResponse{
		ID:                link.ID,
		ShortURL:          link.Alias,
		OriginalURL:       link.Destination,
		ShortLink:         baseURL + "/" + link.Alias,
		PasswordProtected: link.HasPassword(),
		ExpiresAt:         link.ExpiresAt,
		CreatedAt:         link.CreatedAt,
	}
}

// ToLinkList converts links with click counts to list items.
// The result is never nil so an empty list encodes as [].
func ToLinkList(links []*model.LinkWithClicks, baseURL string) []LinkListItem {
	items := make([]LinkListItem, 0, len(links))
	for _, link := range links {
		items = append(items, LinkListItem{
			LinkResponse: ToLinkResponse(&link.Link, baseURL),
			Clicks:       link.Clicks,
		})
	}
	return items
}
