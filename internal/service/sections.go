package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/atroshin/resumesync/internal/models"
	"github.com/atroshin/resumesync/internal/repository"
)

// ErrForbidden is returned when a user touches a resume they do not own.
var ErrForbidden = errors.New("resume belongs to another user")

// SectionRepository defines the persistence operations needed by the
// SectionService.
type SectionRepository interface {
	// ResumeOwner returns the user id owning the given resume.
	ResumeOwner(ctx context.Context, resumeID string) (string, error)
	// EnsureResume creates the resume record if missing.
	EnsureResume(ctx context.Context, resumeID, userID string) error
	// GetSection fetches one live section.
	GetSection(ctx context.Context, resumeID string, t models.SectionType) (*models.Section, error)
	// ListSections fetches the live sections of a resume.
	ListSections(ctx context.Context, resumeID string, types ...models.SectionType) ([]models.Section, error)
	// UpsertSection inserts or fully replaces a section.
	UpsertSection(ctx context.Context, sec models.Section) error
	// DeleteSection tombstones a section.
	DeleteSection(ctx context.Context, resumeID string, t models.SectionType, updatedAt int64) error
}

// Notifier pushes change events to subscribed clients.
type Notifier interface {
	// Broadcast delivers ev to every subscriber of its resume.
	Broadcast(ev models.ChangeEvent)
}

// SectionService implements resume-section reads and writes with ownership
// enforcement and change notification.
type SectionService struct {
	// repo is the underlying persistence repository.
	repo SectionRepository
	// notifier receives one event per confirmed write; may be nil.
	notifier Notifier
}

// NewSectionService constructs a SectionService. notifier may be nil when
// no change feed is wired.
func NewSectionService(repo SectionRepository, notifier Notifier) *SectionService {
	return &SectionService{repo: repo, notifier: notifier}
}

// authorize checks resume ownership. An unknown resume is fine: records are
// created lazily on first write, and reads of it come back empty.
func (s *SectionService) authorize(ctx context.Context, userID, resumeID string) (exists bool, err error) {
	owner, err := s.repo.ResumeOwner(ctx, resumeID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if owner != userID {
		return true, ErrForbidden
	}
	return true, nil
}

// Get fetches one section. A section that does not exist yet reads as
// ErrNotFound; the client maps that to an empty value.
func (s *SectionService) Get(ctx context.Context, userID, resumeID string, t models.SectionType) (*models.Section, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown section type %q", ErrValidation, t)
	}
	exists, err := s.authorize(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	sec, err := s.repo.GetSection(ctx, resumeID, t)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return sec, err
}

// List fetches the live sections of a resume.
func (s *SectionService) List(ctx context.Context, userID, resumeID string, types ...models.SectionType) ([]models.Section, error) {
	exists, err := s.authorize(ctx, userID, resumeID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return s.repo.ListSections(ctx, resumeID, types...)
}

// Upsert fully replaces a section's content, creating the resume record
// lazily on first write, and broadcasts the change.
func (s *SectionService) Upsert(ctx context.Context, userID, resumeID string, t models.SectionType, content json.RawMessage) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown section type %q", ErrValidation, t)
	}
	if len(content) == 0 || !json.Valid(content) {
		return fmt.Errorf("%w: section content is not valid JSON", ErrValidation)
	}
	exists, err := s.authorize(ctx, userID, resumeID)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.repo.EnsureResume(ctx, resumeID, userID); err != nil {
			return err
		}
	}

	now := time.Now().UnixMilli()
	if err := s.repo.UpsertSection(ctx, models.Section{
		ResumeID:  resumeID,
		Type:      t,
		Content:   content,
		UpdatedAt: now,
	}); err != nil {
		return err
	}
	s.notify(models.ChangeEvent{ID: uuid.NewString(), ResumeID: resumeID, Type: t, Timestamp: now})
	return nil
}

// Delete tombstones a section and broadcasts the removal.
func (s *SectionService) Delete(ctx context.Context, userID, resumeID string, t models.SectionType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: unknown section type %q", ErrValidation, t)
	}
	exists, err := s.authorize(ctx, userID, resumeID)
	if err != nil {
		return err
	}
	if !exists {
		// Deleting a section of a resume the server never saw is a no-op.
		return nil
	}

	now := time.Now().UnixMilli()
	if err := s.repo.DeleteSection(ctx, resumeID, t, now); err != nil {
		return err
	}
	s.notify(models.ChangeEvent{ID: uuid.NewString(), ResumeID: resumeID, Type: t, Deleted: true, Timestamp: now})
	return nil
}

func (s *SectionService) notify(ev models.ChangeEvent) {
	if s.notifier != nil {
		s.notifier.Broadcast(ev)
	}
}
