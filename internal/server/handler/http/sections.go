package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/atroshin/resumesync/internal/middleware"
	"github.com/atroshin/resumesync/internal/models"
	"github.com/atroshin/resumesync/internal/service"
)

// maxSectionBody bounds the accepted size of one section payload.
const maxSectionBody = 1 << 20

// SectionService defines the interface for resume-section operations
// required by the SectionHandler.
type SectionService interface {
	// Get fetches one section.
	Get(ctx context.Context, userID, resumeID string, t models.SectionType) (*models.Section, error)
	// List fetches the live sections of a resume.
	List(ctx context.Context, userID, resumeID string, types ...models.SectionType) ([]models.Section, error)
	// Upsert fully replaces a section's content.
	Upsert(ctx context.Context, userID, resumeID string, t models.SectionType, content json.RawMessage) error
	// Delete tombstones a section.
	Delete(ctx context.Context, userID, resumeID string, t models.SectionType) error
}

// SectionHandler handles HTTP requests for resume sections.
type SectionHandler struct {
	// SectionService performs the underlying section operations.
	SectionService SectionService
}

func sectionParams(r *http.Request) (userID, resumeID string, t models.SectionType) {
	return middleware.GetUserIDFromContext(r.Context()),
		chi.URLParam(r, "id"),
		models.SectionType(chi.URLParam(r, "type"))
}

func writeSectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "section not found", http.StatusNotFound)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Get handles GET /api/resumes/{id}/sections/{type}.
func (h *SectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, resumeID, t := sectionParams(r)

	sec, err := h.SectionService.Get(r.Context(), userID, resumeID, t)
	if err != nil {
		writeSectionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sec)
}

// List handles GET /api/resumes/{id}/sections.
func (h *SectionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserIDFromContext(r.Context())
	resumeID := chi.URLParam(r, "id")

	var types []models.SectionType
	for _, raw := range r.URL.Query()["type"] {
		types = append(types, models.SectionType(raw))
	}

	sections, err := h.SectionService.List(r.Context(), userID, resumeID, types...)
	if err != nil {
		writeSectionError(w, err)
		return
	}
	if sections == nil {
		sections = []models.Section{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sections)
}

// Upsert handles PUT /api/resumes/{id}/sections/{type}.
// The body is the full section record; its content replaces whatever the
// server holds, which keeps retried applies harmless.
func (h *SectionHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, resumeID, t := sectionParams(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSectionBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	var sec models.Section
	if err := json.Unmarshal(body, &sec); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := h.SectionService.Upsert(r.Context(), userID, resumeID, t, sec.Content); err != nil {
		writeSectionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Delete handles DELETE /api/resumes/{id}/sections/{type}.
func (h *SectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, resumeID, t := sectionParams(r)

	if err := h.SectionService.Delete(r.Context(), userID, resumeID, t); err != nil {
		writeSectionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
