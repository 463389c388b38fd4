// Package repository provides persistence implementations for the backend
// services using a PostgreSQL database.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrEmailTaken is returned when registering an already-registered email.
var ErrEmailTaken = errors.New("email already registered")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// uniqueViolation is the Postgres error code for unique-constraint breaks.
const uniqueViolation = "23505"

// PostgresAuthRepository implements user account persistence.
type PostgresAuthRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAuthRepository creates a new PostgresAuthRepository with the
// given database connection.
func NewPostgresAuthRepository(db *sql.DB) *PostgresAuthRepository {
	return &PostgresAuthRepository{DB: db}
}

// CreateUser inserts a new user record. Registering an email that already
// exists returns ErrEmailTaken.
func (r *PostgresAuthRepository) CreateUser(ctx context.Context, id, email string, passwordHash []byte, fullName string, updatedAt int64) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, email, passwordHash, fullName, updatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return fmt.Errorf("CreateUser: %w", err)
	}
	return nil
}

// GetCredentials returns the user id and password hash for an email.
// Returns ErrNotFound when no such user exists.
func (r *PostgresAuthRepository) GetCredentials(ctx context.Context, email string) (string, []byte, error) {
	var id string
	var hash []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, password_hash FROM users WHERE email = $1
	`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("GetCredentials: %w", err)
	}
	return id, hash, nil
}
