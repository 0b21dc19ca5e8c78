// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"

	"github.com/reurl/reurl/internal/repository"
)

// Service errors.
var (
	ErrInvalidDestination = errors.New("invalid destination URL")
	ErrURLTooLong         = errors.New("destination URL too long")
	ErrInvalidAlias       = errors.New("custom slug must be 3-32 characters of letters, digits, '-' or '_'")
	ErrReservedAlias      = errors.New("custom slug is reserved")
	ErrAliasExists        = errors.New("alias already exists")
	ErrAliasExhausted     = errors.New("could not generate a free alias")
	ErrExpiresInPast      = errors.New("expiresAt must be in the future")
	ErrPasswordTooLong    = errors.New("password must be at most 128 characters")
	ErrLinkNotFound       = errors.New("link not found")
	ErrUnavailable        = errors.New("service temporarily unavailable")
)

// storeErr wraps a persistence error and surfaces database outages as ErrUnavailable.
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
