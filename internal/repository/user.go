package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reurl/reurl/internal/model"
)

// ErrUserNotFound is returned when no user is bound to an identity.
var ErrUserNotFound = errors.New("user not found")

// GetUserByExternalID retrieves the user bound to an identity provider subject.
func (r *Repository) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	query := `
		SELECT id, clerk_id, COALESCE(email, ''), created_at, updated_at
		FROM users
		WHERE clerk_id = $1
	`

	var user model.User
	err := r.pool.QueryRow(ctx, query, externalID).Scan(
		&user.ID,
		&user.ExternalID,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, wrapErr("get user by external id", err)
	}

	return &user, nil
}

// EnsureUser returns the user bound to externalID, creating it on first use.
// A non-empty email replaces the stored one when it changed.
func (r *Repository) EnsureUser(ctx context.Context, externalID, email string) (*model.User, error) {
	existing, err := r.GetUserByExternalID(ctx, externalID)
	if err == nil {
		if email != "" && existing.Email != email {
			if err := r.updateUserEmail(ctx, existing.ID, email); err != nil {
				return nil, err
			}
			existing.Email = email
		}
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	// Concurrent first requests race here; the loser falls through to the re-read.
	now := time.Now().UTC()
	query := `
		INSERT INTO users (id, clerk_id, email, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $4)
		ON CONFLICT (clerk_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, uuid.NewString(), externalID, email, now); err != nil {
		return nil, wrapErr("create user", err)
	}

	return r.GetUserByExternalID(ctx, externalID)
}

func (r *Repository) updateUserEmail(ctx context.Context, id, email string) error {
	query := `UPDATE users SET email = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, email); err != nil {
		return wrapErr("update user email", err)
	}
	return nil
}
