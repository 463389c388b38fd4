// Package session keeps the authenticated user's profile available across
// flaky connectivity: remote fetch with a deadline, cached fallback guarded
// by owner identity, bounded retries, and optimistic updates that replay
// after reconnect.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atroshin/resumesync/internal/client/backoff"
	"github.com/atroshin/resumesync/internal/client/netmon"
	"github.com/atroshin/resumesync/internal/client/remote"
	"github.com/atroshin/resumesync/internal/client/store"
	"github.com/atroshin/resumesync/internal/models"
)

// State is the profile availability state.
type State int

const (
	// StateInitializing means session lookup or first fetch is in progress.
	StateInitializing State = iota
	// StateLive means the profile was fetched from the server.
	StateLive
	// StateLiveFromCache means a cached profile is being served because the
	// fetch failed.
	StateLiveFromCache
	// StateUnavailable means no profile could be obtained; the session
	// proceeds without one.
	StateUnavailable
	// StateCleared means the user signed out.
	StateCleared
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLive:
		return "live"
	case StateLiveFromCache:
		return "live_from_cache"
	case StateUnavailable:
		return "unavailable"
	case StateCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// ErrNoSession is returned by Start when no session exists.
var ErrNoSession = errors.New("session: not signed in")

// Cache layout: a single fixed-key entry each for the profile snapshot and
// the deferred profile patch.
const (
	cacheNamespace  = "session"
	profileCacheKey = "cached_profile"
	pendingPatchKey = "pending_profile_update"
)

// Remote is the slice of the backend client the manager needs.
type Remote interface {
	GetSession(ctx context.Context) (*models.Session, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.Profile, error)
}

// Config assembles a Manager.
type Config struct {
	Remote  Remote
	Store   *store.Store
	Monitor *netmon.Monitor
	// Policy bounds profile fetch retries; zero value means 2 retries from
	// a 2 second base.
	Policy backoff.Policy
	// FetchTimeout bounds a single profile fetch; 0 means 8 seconds.
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// Manager owns the session lifetime and the cached profile.
type Manager struct {
	remote  Remote
	store   *store.Store
	monitor *netmon.Monitor
	policy  backoff.Policy
	timeout time.Duration
	log     *zap.Logger
	sf      singleflight.Group

	mu           sync.Mutex
	state        State
	sess         *models.Session
	profile      *models.Profile
	replayArmed  bool
	replayCancel func()
	ctx          context.Context
	cancel       context.CancelFunc
}

// New builds a Manager.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 8 * time.Second
	}
	if cfg.Policy.MaxRetries == 0 && cfg.Policy.BaseDelay == 0 {
		cfg.Policy = backoff.Policy{MaxRetries: 2, BaseDelay: 2 * time.Second}
	}
	return &Manager{
		remote:  cfg.Remote,
		store:   cfg.Store,
		monitor: cfg.Monitor,
		policy:  cfg.Policy,
		timeout: cfg.FetchTimeout,
		log:     cfg.Logger,
		state:   StateInitializing,
	}
}

// State returns the current availability state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Profile returns a copy of the current profile, or nil when unavailable.
func (m *Manager) Profile() *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profile == nil {
		return nil
	}
	p := *m.profile
	return &p
}

// Session returns the active session, or nil.
func (m *Manager) Session() *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Start looks up the session and brings the profile to the best available
// state. All async work it spawns is bound to a session-scoped context, so
// SignOut deterministically cancels anything still in flight; late results
// for a torn-down session are simply never applied.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateInitializing
	m.ctx, m.cancel = context.WithCancel(ctx)
	scope := m.ctx
	m.mu.Unlock()

	// The session lookup shares the profile fetch's retry policy; transient
	// failures get the same bounded backoff.
	var sess *models.Session
	err := m.policy.Do(scope, func(ctx context.Context) error {
		var lerr error
		sess, lerr = m.remote.GetSession(ctx)
		return lerr
	}, m.retryable)
	if err != nil {
		m.setState(StateUnavailable)
		return fmt.Errorf("session lookup: %w", err)
	}
	if sess == nil || sess.UserID == "" {
		m.setState(StateUnavailable)
		return ErrNoSession
	}
	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()

	m.loadProfile(scope, sess.UserID)

	// Resume a patch deferred by an earlier offline update, if one survived
	// a restart.
	var stale models.ProfilePatch
	if m.store.Get(cacheNamespace, pendingPatchKey, &stale) && !stale.IsZero() {
		m.armReplay()
		if !m.monitor.Offline() {
			go m.replayPending(scope)
		}
	}
	return nil
}

// loadProfile walks the availability state machine for one user.
func (m *Manager) loadProfile(ctx context.Context, userID string) {
	p, err := m.fetchProfile(ctx, userID)
	if err == nil {
		m.adoptProfile(p, StateLive)
		return
	}
	m.log.Warn("profile fetch failed", zap.String("user_id", userID), zap.Error(err))

	if cached, ok := m.cachedProfile(userID); ok {
		m.adoptProfile(cached, StateLiveFromCache)
		return
	}

	if m.retryable(err) {
		retryErr := m.policy.Do(ctx, func(ctx context.Context) error {
			fetched, ferr := m.fetchProfile(ctx, userID)
			if ferr != nil {
				return ferr
			}
			p = fetched
			return nil
		}, m.retryable)
		if retryErr == nil {
			m.adoptProfile(p, StateLive)
			return
		}
		m.log.Warn("profile retries exhausted", zap.String("user_id", userID), zap.Error(retryErr))
	}

	if cached, ok := m.cachedProfile(userID); ok {
		m.adoptProfile(cached, StateLiveFromCache)
		return
	}
	m.setState(StateUnavailable)
}

// fetchProfile runs one deadline-bounded fetch, deduplicated across
// concurrent callers.
func (m *Manager) fetchProfile(ctx context.Context, userID string) (*models.Profile, error) {
	v, err, _ := m.sf.Do(userID, func() (any, error) {
		fctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return m.remote.GetProfile(fctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Profile), nil
}

// retryable classifies failures per the error taxonomy: remote network and
// timeout kinds, or the monitor reporting offline.
func (m *Manager) retryable(err error) bool {
	return remote.IsRetryable(err) || m.monitor.Offline()
}

// cachedProfile returns the cached snapshot only when it belongs to userID.
// A mismatched cached profile is ignored, never merged.
func (m *Manager) cachedProfile(userID string) (*models.Profile, bool) {
	var p models.Profile
	if !m.store.Get(cacheNamespace, profileCacheKey, &p) {
		return nil, false
	}
	if p.ID != userID {
		m.log.Warn("ignoring cached profile for different user",
			zap.String("cached_owner", p.ID), zap.String("session_user", userID))
		return nil, false
	}
	return &p, true
}

func (m *Manager) adoptProfile(p *models.Profile, st State) {
	m.mu.Lock()
	if m.state == StateCleared {
		// Signed out while the fetch was in flight; drop the result.
		m.mu.Unlock()
		return
	}
	m.profile = p
	m.state = st
	m.mu.Unlock()

	if st == StateLive {
		if err := m.store.Set(cacheNamespace, profileCacheKey, p); err != nil {
			m.log.Warn("profile cache write failed", zap.Error(err))
		}
	}
}

func (m *Manager) setState(st State) {
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}

// UpdateProfile applies the patch optimistically to memory and cache, then
// attempts the remote write. A failure while offline defers the patch for
// replay on the next reconnect and reports success. Any other failure is
// returned to the caller; the optimistic local state stands, which is the
// accepted tradeoff of optimistic updates.
func (m *Manager) UpdateProfile(ctx context.Context, patch models.ProfilePatch) error {
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	userID := m.sess.UserID
	p := models.Profile{ID: userID}
	if m.profile != nil {
		p = *m.profile
	}
	patch.Apply(&p)
	m.profile = &p
	m.mu.Unlock()

	if err := m.store.Set(cacheNamespace, profileCacheKey, &p); err != nil {
		m.log.Warn("profile cache write failed", zap.Error(err))
	}

	updated, err := m.remote.UpdateProfile(ctx, userID, patch)
	if err == nil {
		m.adoptProfile(updated, StateLive)
		return nil
	}

	if m.monitor.Offline() {
		m.deferPatch(patch)
		return nil
	}
	return fmt.Errorf("update profile: %w", err)
}

// deferPatch persists the patch itself (not the merged result) and arms a
// one-shot replay on the next transition to online.
func (m *Manager) deferPatch(patch models.ProfilePatch) {
	merged := patch
	var prior models.ProfilePatch
	if m.store.Get(cacheNamespace, pendingPatchKey, &prior) {
		merged = mergePatches(prior, patch)
	}
	if err := m.store.Set(cacheNamespace, pendingPatchKey, &merged); err != nil {
		m.log.Warn("pending profile update write failed", zap.Error(err))
		return
	}
	m.log.Info("profile update deferred until reconnect")
	m.armReplay()
}

// armReplay registers the one-shot sync-when-online handler. Repeated calls
// while armed are no-ops.
func (m *Manager) armReplay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replayArmed {
		return
	}
	m.replayArmed = true
	scope := m.ctx

	var unsubscribe func()
	unsubscribe = m.monitor.OnTransition(func(online bool) {
		if !online {
			return
		}
		unsubscribe()
		m.mu.Lock()
		m.replayArmed = false
		m.replayCancel = nil
		m.mu.Unlock()
		go m.replayPending(scope)
	})
	m.replayCancel = unsubscribe
}

// replayPending pushes the deferred patch to the server and discards the
// record on success. A failure while offline re-arms the replay.
func (m *Manager) replayPending(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	var patch models.ProfilePatch
	if !m.store.Get(cacheNamespace, pendingPatchKey, &patch) || patch.IsZero() {
		return
	}
	m.mu.Lock()
	if m.sess == nil {
		m.mu.Unlock()
		return
	}
	userID := m.sess.UserID
	m.mu.Unlock()

	updated, err := m.remote.UpdateProfile(ctx, userID, patch)
	if err != nil {
		m.log.Warn("deferred profile update replay failed", zap.Error(err))
		if m.monitor.Offline() {
			m.armReplay()
		}
		return
	}
	m.store.Remove(cacheNamespace, pendingPatchKey)
	m.adoptProfile(updated, StateLive)
	m.log.Info("deferred profile update replayed")
}

// SignOut cancels all session-scoped work and clears both the in-memory and
// the cached profile.
func (m *Manager) SignOut() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	replayCancel := m.replayCancel
	m.replayCancel = nil
	m.sess = nil
	m.profile = nil
	m.replayArmed = false
	m.state = StateCleared
	m.mu.Unlock()

	// Detach the armed replay from the monitor so no callback outlives the
	// session.
	if replayCancel != nil {
		replayCancel()
	}

	m.store.Remove(cacheNamespace, profileCacheKey)
	m.store.Remove(cacheNamespace, pendingPatchKey)
}

func mergePatches(prior, next models.ProfilePatch) models.ProfilePatch {
	out := prior
	if next.Email != nil {
		out.Email = next.Email
	}
	if next.FullName != nil {
		out.FullName = next.FullName
	}
	if next.AvatarURL != nil {
		out.AvatarURL = next.AvatarURL
	}
	return out
}
