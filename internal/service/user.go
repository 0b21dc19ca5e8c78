package service

import (
	"context"

	"github.com/reurl/reurl/internal/model"
)

// UserStore binds external identities to users.
type UserStore interface {
	EnsureUser(ctx context.Context, externalID, email string) (*model.User, error)
}

// UserService resolves authenticated identities to users.
type UserService struct {
	store UserStore
}

// NewUserService creates a new UserService.
func NewUserService(store UserStore) *UserService {
	return &UserService{store: store}
}

// EnsureUser returns the user for an identity subject, creating it on first use.
func (s *UserService) EnsureUser(ctx context.Context, externalID, email string) (*model.User, error) {
	user, err := s.store.EnsureUser(ctx, externalID, email)
	if err != nil {
		return nil, storeErr("ensure user", err)
	}
	return user, nil
}
