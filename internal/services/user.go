package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/teamboard/apiserver/internal/store"
	"github.com/teamboard/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	// GetByEmail never loads the password hash or refresh token.
	GetByEmail(ctx context.Context, email string) (types.User, error)
	// GetCredentialsByEmail also loads the password hash.
	GetCredentialsByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateRefreshToken(ctx context.Context, id, token string) error
}

// UserService encapsulates user read use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// CurrentUser loads the profile named by an access token's subject. A subject
// with no account fails with ErrUnauthorized.
func (s *UserService) CurrentUser(ctx context.Context, userID string) (types.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUnauthorized
		}
		return types.User{}, fmt.Errorf("current user: %w", err)
	}
	return user, nil
}
