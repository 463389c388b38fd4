package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atroshin/resumesync/internal/models"
	"github.com/atroshin/resumesync/internal/repository"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ProfileRepository defines the persistence operations needed by the
// ProfileService.
type ProfileRepository interface {
	// GetProfile fetches one user's profile.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	// UpdateProfile applies a partial update and returns the result.
	UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch, updatedAt int64) (*models.Profile, error)
}

// ProfileService implements profile reads and partial updates.
type ProfileService struct {
	// repo is the underlying persistence repository.
	repo ProfileRepository
}

// NewProfileService constructs a ProfileService with the provided repository.
func NewProfileService(repo ProfileRepository) *ProfileService {
	return &ProfileService{repo: repo}
}

// Get fetches one user's profile.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

// Update validates and applies a partial profile update. An empty patch and
// a malformed email are semantic rejections, never retried by clients.
func (s *ProfileService) Update(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	if patch.IsZero() {
		return nil, fmt.Errorf("%w: empty patch", ErrValidation)
	}
	if patch.Email != nil && !strings.Contains(*patch.Email, "@") {
		return nil, fmt.Errorf("%w: email %q", ErrValidation, *patch.Email)
	}

	p, err := s.repo.UpdateProfile(ctx, userID, patch, time.Now().UnixMilli())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}
