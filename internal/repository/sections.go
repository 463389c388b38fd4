package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/atroshin/resumesync/internal/models"
)

// PostgresSectionRepository implements resume-section persistence against a
// PostgreSQL database.
type PostgresSectionRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresSectionRepository creates a new PostgresSectionRepository using
// the provided *sql.DB.
func NewPostgresSectionRepository(db *sql.DB) *PostgresSectionRepository {
	return &PostgresSectionRepository{DB: db}
}

// ResumeOwner returns the user id owning the given resume. Returns
// ErrNotFound for an unknown resume.
func (r *PostgresSectionRepository) ResumeOwner(ctx context.Context, resumeID string) (string, error) {
	var owner string
	err := r.DB.QueryRowContext(ctx, `
		SELECT user_id FROM resumes WHERE id = $1
	`, resumeID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ResumeOwner: %w", err)
	}
	return owner, nil
}

// EnsureResume creates the resume record if it does not exist yet. The
// remote record is created lazily on first write.
func (r *PostgresSectionRepository) EnsureResume(ctx context.Context, resumeID, userID string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO resumes (id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, resumeID, userID)
	if err != nil {
		return fmt.Errorf("EnsureResume: %w", err)
	}
	return nil
}

// GetSection fetches one live (non-tombstoned) section. Returns ErrNotFound
// when the section does not exist or was deleted.
func (r *PostgresSectionRepository) GetSection(ctx context.Context, resumeID string, t models.SectionType) (*models.Section, error) {
	var sec models.Section
	err := r.DB.QueryRowContext(ctx, `
		SELECT resume_id, type, content, updated_at FROM sections
		WHERE resume_id = $1 AND type = $2 AND deleted = false
	`, resumeID, t).Scan(&sec.ResumeID, &sec.Type, (*[]byte)(&sec.Content), &sec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetSection: %w", err)
	}
	return &sec, nil
}

// ListSections fetches the live sections of a resume. When types are given,
// only those kinds are returned.
func (r *PostgresSectionRepository) ListSections(ctx context.Context, resumeID string, types ...models.SectionType) ([]models.Section, error) {
	query := `
		SELECT resume_id, type, content, updated_at FROM sections
		WHERE resume_id = $1 AND deleted = false
	`
	args := []any{resumeID}
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		query += ` AND type = ANY($2)`
		args = append(args, pq.Array(names))
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListSections: %w", err)
	}
	defer rows.Close()

	var sections []models.Section
	for rows.Next() {
		var sec models.Section
		if err := rows.Scan(&sec.ResumeID, &sec.Type, (*[]byte)(&sec.Content), &sec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// UpsertSection inserts the section or replaces its full content on
// conflict. The write is idempotent: re-applying the same content leaves
// the row identical apart from updated_at.
func (r *PostgresSectionRepository) UpsertSection(ctx context.Context, sec models.Section) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO sections (resume_id, type, content, updated_at, deleted)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (resume_id, type) DO UPDATE SET
			content = EXCLUDED.content,
			updated_at = EXCLUDED.updated_at,
			deleted = false
	`, sec.ResumeID, sec.Type, []byte(sec.Content), sec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("UpsertSection: %w", err)
	}
	return nil
}

// DeleteSection tombstones a section. The tombstone survives until the
// purger removes it.
func (r *PostgresSectionRepository) DeleteSection(ctx context.Context, resumeID string, t models.SectionType, updatedAt int64) error {
	_, err := r.DB.ExecContext(ctx, `
		UPDATE sections SET deleted = true, updated_at = $3
		WHERE resume_id = $1 AND type = $2
	`, resumeID, t, updatedAt)
	if err != nil {
		return fmt.Errorf("DeleteSection: %w", err)
	}
	return nil
}
