package users

import (
	"context"

	"github.com/promptgist/promptgist/internal/identity"
	"github.com/promptgist/promptgist/internal/models"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromClaims creates or updates a user using OIDC claims map. It
// returns nil, nil when the claims carry no subject.
func (s *Service) UpsertFromClaims(ctx context.Context, claims map[string]interface{}) (*models.User, error) {
	id, ok := identity.FromClaims(claims)
	if !ok {
		return nil, nil
	}
	return s.repo.UpsertBySub(ctx, &models.User{Sub: id.ID, Email: id.Email, Name: id.Name})
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySub(ctx, sub)
}
