package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/middleware"
	"github.com/atroshin/resumesync/internal/models"
	"github.com/atroshin/resumesync/internal/service"
)

const testSecret = "test-secret"

// fakeAuthService implements AuthService for testing.
type fakeAuthService struct {
	registerID  string
	registerErr error
	loginID     string
	loginErr    error
}

func (f *fakeAuthService) Register(ctx context.Context, email, password, fullName string) (string, error) {
	return f.registerID, f.registerErr
}

func (f *fakeAuthService) Login(ctx context.Context, email, password string) (string, error) {
	return f.loginID, f.loginErr
}

// fakeProfileService implements ProfileService for testing.
type fakeProfileService struct {
	profile   *models.Profile
	getErr    error
	updateErr error
}

func (f *fakeProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	return f.profile, f.getErr
}

func (f *fakeProfileService) Update(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	p := *f.profile
	patch.Apply(&p)
	return &p, nil
}

// fakeSectionService implements SectionService for testing.
type fakeSectionService struct {
	section   *models.Section
	sections  []models.Section
	getErr    error
	listErr   error
	upsertErr error
	deleteErr error

	lastUpsert models.Section
}

func (f *fakeSectionService) Get(ctx context.Context, userID, resumeID string, t models.SectionType) (*models.Section, error) {
	return f.section, f.getErr
}

func (f *fakeSectionService) List(ctx context.Context, userID, resumeID string, types ...models.SectionType) ([]models.Section, error) {
	return f.sections, f.listErr
}

func (f *fakeSectionService) Upsert(ctx context.Context, userID, resumeID string, t models.SectionType, content json.RawMessage) error {
	f.lastUpsert = models.Section{ResumeID: resumeID, Type: t, Content: content}
	return f.upsertErr
}

func (f *fakeSectionService) Delete(ctx context.Context, userID, resumeID string, t models.SectionType) error {
	return f.deleteErr
}

func testRouter(auth *fakeAuthService, profile *fakeProfileService, section *fakeSectionService) http.Handler {
	return NewRouter(
		&AuthHandler{AuthService: auth, JWTSecret: testSecret, TokenTTL: time.Hour},
		&ProfileHandler{ProfileService: profile},
		&SectionHandler{SectionService: section},
		NewChangeHub(zap.NewNop()),
		testSecret,
		zap.NewNop(),
	)
}

func bearerFor(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := middleware.IssueToken(testSecret, userID, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return "Bearer " + token
}

func TestHealth(t *testing.T) {
	router := testRouter(&fakeAuthService{}, &fakeProfileService{}, &fakeSectionService{})

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/api/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s /api/health = %d; want %d", method, rec.Code, http.StatusOK)
		}
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		service      *fakeAuthService
		expectedCode int
	}{
		{
			name:         "invalid JSON",
			body:         `not a json`,
			service:      &fakeAuthService{},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "empty email",
			body:         `{"email":""}`,
			service:      &fakeAuthService{},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "email taken",
			body:         `{"email":"eve@example.com","password":"hunter2hunter2"}`,
			service:      &fakeAuthService{registerErr: service.ErrEmailTaken},
			expectedCode: http.StatusConflict,
		},
		{
			name:         "validation rejection",
			body:         `{"email":"eve@example.com","password":"short"}`,
			service:      &fakeAuthService{registerErr: fmt.Errorf("%w: password too short", service.ErrValidation)},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "service failure",
			body:         `{"email":"eve@example.com","password":"hunter2hunter2"}`,
			service:      &fakeAuthService{registerErr: errors.New("db down")},
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "success",
			body:         `{"email":"eve@example.com","password":"hunter2hunter2","full_name":"Eve"}`,
			service:      &fakeAuthService{registerID: "u1"},
			expectedCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(tt.service, &fakeProfileService{}, &fakeSectionService{})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/register", bytes.NewBufferString(tt.body))
			router.ServeHTTP(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("status = %d; want %d: %s", rec.Code, tt.expectedCode, rec.Body.String())
			}
			if tt.expectedCode == http.StatusOK {
				var sess models.Session
				if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
					t.Fatalf("decode session: %v", err)
				}
				if sess.UserID != "u1" || sess.Token == "" {
					t.Errorf("unexpected session: %+v", sess)
				}
			}
		})
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		service      *fakeAuthService
		expectedCode int
	}{
		{
			name:         "bad credentials",
			body:         `{"email":"eve@example.com","password":"wrong"}`,
			service:      &fakeAuthService{loginErr: service.ErrInvalidCredentials},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "success",
			body:         `{"email":"eve@example.com","password":"hunter2hunter2"}`,
			service:      &fakeAuthService{loginID: "u1"},
			expectedCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(tt.service, &fakeProfileService{}, &fakeSectionService{})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(tt.body))
			router.ServeHTTP(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("status = %d; want %d: %s", rec.Code, tt.expectedCode, rec.Body.String())
			}
		})
	}
}

func TestSession_RequiresToken(t *testing.T) {
	router := testRouter(&fakeAuthService{}, &fakeProfileService{}, &fakeSectionService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestSession_EchoesAuthenticatedUser(t *testing.T) {
	router := testRouter(&fakeAuthService{}, &fakeProfileService{}, &fakeSectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", bearerFor(t, "u1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	var sess models.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.UserID != "u1" {
		t.Errorf("UserID = %q; want %q", sess.UserID, "u1")
	}
	if sess.ExpiresAt == 0 {
		t.Error("expected a non-zero expiry")
	}
}

func TestProfileGet(t *testing.T) {
	profile := &fakeProfileService{profile: &models.Profile{ID: "u1", FullName: "Eve"}}
	router := testRouter(&fakeAuthService{}, profile, &fakeSectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile/u1", nil)
	req.Header.Set("Authorization", bearerFor(t, "u1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var p models.Profile
	if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.FullName != "Eve" {
		t.Errorf("FullName = %q; want %q", p.FullName, "Eve")
	}
}

func TestProfileGet_OtherUserForbidden(t *testing.T) {
	router := testRouter(&fakeAuthService{}, &fakeProfileService{}, &fakeSectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/profile/u2", nil)
	req.Header.Set("Authorization", bearerFor(t, "u1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusForbidden)
	}
}

func TestProfileUpdate(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		service      *fakeProfileService
		expectedCode int
	}{
		{
			name:         "validation rejection",
			body:         `{"email":"nope"}`,
			service:      &fakeProfileService{updateErr: fmt.Errorf("%w: bad email", service.ErrValidation)},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name:         "unknown user",
			body:         `{"full_name":"Eve"}`,
			service:      &fakeProfileService{updateErr: service.ErrNotFound},
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "success",
			body:         `{"full_name":"Eve II"}`,
			service:      &fakeProfileService{profile: &models.Profile{ID: "u1", FullName: "Eve"}},
			expectedCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&fakeAuthService{}, tt.service, &fakeSectionService{})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPatch, "/api/profile/u1", strings.NewReader(tt.body))
			req.Header.Set("Authorization", bearerFor(t, "u1"))
			router.ServeHTTP(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("status = %d; want %d: %s", rec.Code, tt.expectedCode, rec.Body.String())
			}
			if tt.expectedCode == http.StatusOK {
				var p models.Profile
				if err := json.NewDecoder(rec.Body).Decode(&p); err != nil {
					t.Fatalf("decode profile: %v", err)
				}
				if p.FullName != "Eve II" {
					t.Errorf("FullName = %q; want %q", p.FullName, "Eve II")
				}
			}
		})
	}
}

func TestSectionUpsert(t *testing.T) {
	section := &fakeSectionService{}
	router := testRouter(&fakeAuthService{}, &fakeProfileService{}, section)

	body := `{"resume_id":"r1","type":"skills","content":{"items":["go"]}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/resumes/r1/sections/skills", strings.NewReader(body))
	req.Header.Set("Authorization", bearerFor(t, "u1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if section.lastUpsert.Type != models.SectionSkills {
		t.Errorf("type = %q; want %q", section.lastUpsert.Type, models.SectionSkills)
	}
	if string(section.lastUpsert.Content) != `{"items":["go"]}` {
		t.Errorf("content = %s", section.lastUpsert.Content)
	}
}

func TestSectionUpsert_ErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{"validation", fmt.Errorf("%w: bad content", service.ErrValidation), http.StatusUnprocessableEntity},
		{"forbidden", service.ErrForbidden, http.StatusForbidden},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&fakeAuthService{}, &fakeProfileService{}, &fakeSectionService{upsertErr: tt.err})
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPut, "/api/resumes/r1/sections/skills",
				strings.NewReader(`{"content":{}}`))
			req.Header.Set("Authorization", bearerFor(t, "u1"))
			router.ServeHTTP(rec, req)

			if rec.Code != tt.expectedCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.expectedCode)
			}
		})
	}
}

func TestSectionGet_NotFound(t *testing.T) {
	router := testRouter(&fakeAuthService{}, &fakeProfileService{},
		&fakeSectionService{getErr: service.ErrNotFound})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/resumes/r1/sections/skills", nil)
	req.Header.Set("Authorization", bearerFor(t, "u1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
	}
}

func TestSectionList_EmptyIsJSONArray(t *testing.T) {
	router := testRouter(&fakeAuthService{}, &fakeProfileService{}, &fakeSectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/resumes/r1/sections", nil)
	req.Header.Set("Authorization", bearerFor(t, "u1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q; want empty JSON array", got)
	}
}

func TestSectionDelete(t *testing.T) {
	router := testRouter(&fakeAuthService{}, &fakeProfileService{}, &fakeSectionService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/resumes/r1/sections/skills", nil)
	req.Header.Set("Authorization", bearerFor(t, "u1"))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}
