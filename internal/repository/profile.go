package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atroshin/resumesync/internal/models"
)

// PostgresProfileRepository implements profile persistence against a
// PostgreSQL database.
type PostgresProfileRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresProfileRepository creates a new PostgresProfileRepository using
// the provided *sql.DB.
func NewPostgresProfileRepository(db *sql.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{DB: db}
}

// GetProfile fetches one user's profile. Returns ErrNotFound when the user
// does not exist.
func (r *PostgresProfileRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, email, full_name, avatar_url, updated_at FROM users WHERE id = $1
	`, userID).Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetProfile: %w", err)
	}
	return &p, nil
}

// UpdateProfile applies a partial update; nil patch fields keep the current
// column value. Returns the updated profile, or ErrNotFound.
func (r *PostgresProfileRepository) UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch, updatedAt int64) (*models.Profile, error) {
	var p models.Profile
	err := r.DB.QueryRowContext(ctx, `
		UPDATE users SET
			email      = COALESCE($2, email),
			full_name  = COALESCE($3, full_name),
			avatar_url = COALESCE($4, avatar_url),
			updated_at = $5
		WHERE id = $1
		RETURNING id, email, full_name, avatar_url, updated_at
	`, userID, patch.Email, patch.FullName, patch.AvatarURL, updatedAt).
		Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateProfile: %w", err)
	}
	return &p, nil
}
