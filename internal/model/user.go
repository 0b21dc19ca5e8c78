package model

import "time"

// User is the local account bound to an identity provider subject.
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"clerk_id"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
