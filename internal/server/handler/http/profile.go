package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/atroshin/resumesync/internal/middleware"
	"github.com/atroshin/resumesync/internal/models"
	"github.com/atroshin/resumesync/internal/service"
)

// ProfileService defines the interface for profile operations required by
// the ProfileHandler.
type ProfileService interface {
	// Get fetches one user's profile.
	Get(ctx context.Context, userID string) (*models.Profile, error)
	// Update applies a partial profile update.
	Update(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error)
}

// ProfileHandler handles HTTP requests for the user profile.
type ProfileHandler struct {
	// ProfileService performs the underlying profile operations.
	ProfileService ProfileService
}

// authorized rejects access to any profile other than the authenticated
// user's own.
func authorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id != middleware.GetUserIDFromContext(r.Context()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return id, true
}

// Get handles GET /api/profile/{id}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := authorized(w, r)
	if !ok {
		return
	}

	p, err := h.ProfileService.Get(r.Context(), id)
	if errors.Is(err, service.ErrNotFound) {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}

// Update handles PATCH /api/profile/{id}.
// It decodes a partial profile, applies it, and writes the updated profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := authorized(w, r)
	if !ok {
		return
	}

	var patch models.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	p, err := h.ProfileService.Update(r.Context(), id, patch)
	switch {
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(p)
}
