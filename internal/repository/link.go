package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/reurl/reurl/internal/model"
)

// Common errors for link repository operations.
var (
	ErrLinkNotFound = errors.New("link not found")
	ErrAliasExists  = errors.New("alias already exists")
)

const linkColumns = `id, user_id, original_url, short_url, COALESCE(password, ''), expires_at, created_at, updated_at`

// CreateLink inserts a new link. The short_url unique constraint is the only
// uniqueness check; a violation is reported as ErrAliasExists.
func (r *Repository) CreateLink(ctx context.Context, link *model.Link) error {
	query := `
		INSERT INTO links (id, user_id, original_url, short_url, password, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		link.ID,
		link.UserID,
		link.Destination,
		link.Alias,
		link.PasswordHash,
		link.ExpiresAt,
		link.CreatedAt,
		link.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAliasExists
		}
		return wrapErr("create link", err)
	}

	return nil
}

// GetActiveLinkByAlias retrieves the unexpired link with exactly this alias.
// This is the hot path for redirects.
func (r *Repository) GetActiveLinkByAlias(ctx context.Context, alias string) (*model.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE short_url = $1
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	link, err := scanLink(r.pool.QueryRow(ctx, query, alias))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, wrapErr("get link by alias", err)
	}

	return link, nil
}

// ListLinksWithClicks returns the owner's newest links with their click counts.
func (r *Repository) ListLinksWithClicks(ctx context.Context, userID string, limit int) ([]*model.LinkWithClicks, error) {
	query := `
		SELECT l.id, l.user_id, l.original_url, l.short_url, COALESCE(l.password, ''),
		       l.expires_at, l.created_at, l.updated_at, COUNT(a.id) AS clicks
		FROM links l
		LEFT JOIN analytics a ON a.link_id = l.id
		WHERE l.user_id = $1
		GROUP BY l.id
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, wrapErr("list links", err)
	}
	defer rows.Close()

	links := make([]*model.LinkWithClicks, 0, limit)
	for rows.Next() {
		var item model.LinkWithClicks
		if err := rows.Scan(
			&item.ID,
			&item.UserID,
			&item.Destination,
			&item.Alias,
			&item.PasswordHash,
			&item.ExpiresAt,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Clicks,
		); err != nil {
			return nil, wrapErr("scan link", err)
		}
		links = append(links, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate links", err)
	}

	return links, nil
}

// DeleteLink removes an owner's link and its analytics rows in one transaction.
// Returns ErrLinkNotFound when the link does not exist or belongs to someone else.
func (r *Repository) DeleteLink(ctx context.Context, id, userID string) (*model.Link, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, wrapErr("begin delete link", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`
	link, err := scanLink(tx.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, wrapErr("lock link", err)
	}

	// Analytics first to satisfy the foreign key.
	if _, err := tx.Exec(ctx, `DELETE FROM analytics WHERE link_id = $1`, id); err != nil {
		return nil, wrapErr("delete link analytics", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM links WHERE id = $1`, id); err != nil {
		return nil, wrapErr("delete link", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("commit delete link", err)
	}

	return link, nil
}

// scanLink scans a single row selected with linkColumns.
func scanLink(row pgx.Row) (*model.Link, error) {
	var link model.Link
	err := row.Scan(
		&link.ID,
		&link.UserID,
		&link.Destination,
		&link.Alias,
		&link.PasswordHash,
		&link.ExpiresAt,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	return &link, err
}
