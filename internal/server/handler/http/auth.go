// Package http provides the backend's HTTP handlers: authentication,
// profile, resume sections, and the change-notification stream.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/atroshin/resumesync/internal/middleware"
	"github.com/atroshin/resumesync/internal/models"
	"github.com/atroshin/resumesync/internal/service"
)

// AuthService defines the interface for authentication operations required
// by the HTTP handlers.
type AuthService interface {
	// Register creates an account and returns the new user id.
	Register(ctx context.Context, email, password, fullName string) (string, error)
	// Login verifies credentials and returns the user id.
	Login(ctx context.Context, email, password string) (string, error)
}

// AuthHandler handles HTTP requests for registration, login, and session
// introspection.
type AuthHandler struct {
	// AuthService performs the underlying authentication operations.
	AuthService AuthService
	// JWTSecret signs issued bearer tokens.
	JWTSecret string
	// TokenTTL bounds issued token lifetime.
	TokenTTL time.Duration
}

// CredentialsRequest represents the JSON payload for registration and login.
type CredentialsRequest struct {
	// Email is the account email address.
	Email string `json:"email"`
	// Password is the plaintext password, hashed server-side.
	Password string `json:"password"`
	// FullName is only used on registration.
	FullName string `json:"full_name,omitempty"`
}

func (h *AuthHandler) writeSession(w http.ResponseWriter, userID string) {
	token, expires, err := middleware.IssueToken(h.JWTSecret, userID, h.TokenTTL)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(models.Session{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expires,
	})
}

// Register handles POST /api/register.
// It expects a JSON body with email, password, and optional full_name,
// creates the account, and responds with a signed-in session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	userID, err := h.AuthService.Register(r.Context(), req.Email, req.Password, req.FullName)
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		http.Error(w, "user already exists", http.StatusConflict)
		return
	case errors.Is(err, service.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.writeSession(w, userID)
}

// Login handles POST /api/login.
// On valid credentials it responds with a session holding a fresh token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	userID, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.writeSession(w, userID)
}

// Session handles GET /api/session.
// It echoes the session identified by the bearer token; the auth middleware
// has already validated it.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(models.Session{
		UserID:    middleware.GetUserIDFromContext(ctx),
		ExpiresAt: middleware.GetExpiryFromContext(ctx),
	})
}
