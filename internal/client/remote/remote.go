// Package remote is the HTTP/WebSocket client of the resume backend. Every
// call goes through a circuit breaker and comes back either clean or as a
// classified *Error.
package remote

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/models"
)

// Client talks to the backend's REST API.
type Client struct {
	baseURL string
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	log     *zap.Logger

	mu    sync.RWMutex
	token string
}

// New builds a Client for the backend at baseURL (no trailing slash).
func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "resume-backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		breaker: breaker,
		log:     log,
	}
}

// SetToken installs the bearer token used on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// call performs one JSON request/response round trip through the breaker.
func (c *Client) call(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: KindValidation, Err: err}
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Kind: KindValidation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		return c.httpc.Do(req)
	})
	if err != nil {
		return classify(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, Kind: KindServer, Err: err}
		}
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

// Register creates an account and returns the signed-in session.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (*models.Session, error) {
	var sess models.Session
	err := c.call(ctx, "register", http.MethodPost, "/api/register",
		credentials{Email: email, Password: password, FullName: fullName}, &sess)
	if err != nil {
		return nil, err
	}
	c.SetToken(sess.Token)
	return &sess, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.Session, error) {
	var sess models.Session
	err := c.call(ctx, "login", http.MethodPost, "/api/login",
		credentials{Email: email, Password: password}, &sess)
	if err != nil {
		return nil, err
	}
	c.SetToken(sess.Token)
	return &sess, nil
}

// GetSession validates the current token against the server and returns the
// session it identifies.
func (c *Client) GetSession(ctx context.Context) (*models.Session, error) {
	var sess models.Session
	if err := c.call(ctx, "get_session", http.MethodGet, "/api/session", nil, &sess); err != nil {
		return nil, err
	}
	sess.Token = c.Token()
	return &sess, nil
}

// GetProfile fetches the profile of the given user.
func (c *Client) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := c.call(ctx, "get_profile", http.MethodGet, "/api/profile/"+userID, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile applies a partial update and returns the updated profile.
func (c *Client) UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error) {
	var p models.Profile
	err := c.call(ctx, "update_profile", http.MethodPatch, "/api/profile/"+userID, patch, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetSection fetches one resume section. A remote not-found comes back as an
// empty section, not an error; the record is created lazily on first upsert.
func (c *Client) GetSection(ctx context.Context, resumeID string, t models.SectionType) (*models.Section, error) {
	var sec models.Section
	err := c.call(ctx, "get_section", http.MethodGet,
		"/api/resumes/"+resumeID+"/sections/"+string(t), nil, &sec)
	if IsNotFound(err) {
		return &models.Section{ResumeID: resumeID, Type: t}, nil
	}
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// UpsertSection replaces the full content of one resume section. The write
// is a full-replacement upsert, so re-applying an already applied change is
// harmless.
func (c *Client) UpsertSection(ctx context.Context, resumeID string, t models.SectionType, content json.RawMessage) error {
	return c.call(ctx, "upsert_section", http.MethodPut,
		"/api/resumes/"+resumeID+"/sections/"+string(t),
		models.Section{ResumeID: resumeID, Type: t, Content: content}, nil)
}

// DeleteSection removes one resume section; the server keeps a tombstone.
func (c *Client) DeleteSection(ctx context.Context, resumeID string, t models.SectionType) error {
	return c.call(ctx, "delete_section", http.MethodDelete,
		"/api/resumes/"+resumeID+"/sections/"+string(t), nil, nil)
}
