// Package service provides business-logic services for authentication,
// profiles, and resume sections, delegating persistence to repository
// interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atroshin/resumesync/internal/repository"
)

// ErrInvalidCredentials is returned on a failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrEmailTaken is returned when registering an already-registered email.
var ErrEmailTaken = errors.New("email already registered")

// ErrValidation wraps any semantic rejection of a request.
var ErrValidation = errors.New("validation failed")

// AuthRepository defines the persistence operations required by the
// authentication service.
type AuthRepository interface {
	// CreateUser inserts a new user record.
	CreateUser(ctx context.Context, id, email string, passwordHash []byte, fullName string, updatedAt int64) error
	// GetCredentials returns the user id and password hash for an email.
	GetCredentials(ctx context.Context, email string) (string, []byte, error)
}

// AuthService implements account registration and login.
type AuthService struct {
	// repo performs the data-layer operations.
	repo AuthRepository
}

// NewAuthService constructs an AuthService with the provided repository.
func NewAuthService(repo AuthRepository) *AuthService {
	return &AuthService{repo: repo}
}

// Register creates an account and returns the new user id.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: email %q", ErrValidation, email)
	}
	if len(password) < 8 {
		return "", fmt.Errorf("%w: password shorter than 8 characters", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	err = s.repo.CreateUser(ctx, id, email, hash, fullName, time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return id, nil
}

// Login verifies credentials and returns the user id. A wrong password and
// an unknown email are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	id, hash, err := s.repo.GetCredentials(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return id, nil
}
