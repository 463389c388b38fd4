// Package client assembles the offline-first sync client: the durable
// store, the network monitor, the remote client, the profile/session
// manager, and one sync engine per resume section kind. UI code talks to
// this facade only; it never reaches into the store or the ledgers.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/client/backoff"
	"github.com/atroshin/resumesync/internal/client/netmon"
	"github.com/atroshin/resumesync/internal/client/remote"
	"github.com/atroshin/resumesync/internal/client/session"
	"github.com/atroshin/resumesync/internal/client/store"
	"github.com/atroshin/resumesync/internal/client/syncer"
	"github.com/atroshin/resumesync/internal/config"
	"github.com/atroshin/resumesync/internal/logger"
	"github.com/atroshin/resumesync/internal/models"
)

// Client is the application-facing surface of the sync layer.
type Client struct {
	cfg     config.ClientOptions
	log     *zap.Logger
	store   *store.Store
	monitor *netmon.Monitor
	remote  *remote.Client
	session *session.Manager

	mu      sync.Mutex
	engines map[models.SectionType]*syncer.Engine[json.RawMessage]
	userID  string
}

// New wires up a Client from configuration. Call Init before use and Close
// when done.
func New(cfg config.ClientOptions, logging config.LoggingOptions) (*Client, error) {
	log, err := logger.New(logging.Level, logging.Format)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(store.Options{
		Dir:            cfg.DataDir,
		NamespaceQuota: cfg.NamespaceQuota,
		Logger:         log.Named("store"),
	})
	if err != nil {
		return nil, err
	}

	rc := remote.New(cfg.ServerURL, log.Named("remote"))
	mon := netmon.New(
		netmon.HTTPProbe(cfg.ServerURL+"/api/health", nil),
		cfg.ProbeInterval,
		log.Named("netmon"),
	)
	sess := session.New(session.Config{
		Remote:       rc,
		Store:        st,
		Monitor:      mon,
		Policy:       backoff.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseDelay},
		FetchTimeout: cfg.ProfileTimeout,
		Logger:       log.Named("session"),
	})

	return &Client{
		cfg:     cfg,
		log:     log,
		store:   st,
		monitor: mon,
		remote:  rc,
		session: sess,
		engines: make(map[models.SectionType]*syncer.Engine[json.RawMessage]),
	}, nil
}

// Init starts the background loops and, when a token is present, brings the
// session up.
func (c *Client) Init(ctx context.Context) error {
	c.monitor.Start(ctx)
	c.store.StartGC(ctx, c.cfg.ProbeInterval*4)

	if c.remote.Token() == "" {
		return nil
	}
	return c.startSession(ctx)
}

func (c *Client) startSession(ctx context.Context) error {
	if err := c.session.Start(ctx); err != nil {
		return err
	}
	sess := c.session.Session()
	c.mu.Lock()
	c.userID = sess.UserID
	c.mu.Unlock()
	return nil
}

// Register creates an account and starts the session.
func (c *Client) Register(ctx context.Context, email, password, fullName string) error {
	if _, err := c.remote.Register(ctx, email, password, fullName); err != nil {
		return err
	}
	return c.startSession(ctx)
}

// Login signs in and starts the session.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if _, err := c.remote.Login(ctx, email, password); err != nil {
		return err
	}
	return c.startSession(ctx)
}

// SignOut tears the session down: cached profile cleared, section engines
// detached, outstanding session work cancelled.
func (c *Client) SignOut() {
	c.session.SignOut()
	c.remote.SetToken("")
	c.mu.Lock()
	for _, e := range c.engines {
		e.Close()
	}
	c.engines = make(map[models.SectionType]*syncer.Engine[json.RawMessage])
	c.userID = ""
	c.mu.Unlock()
}

// Session exposes the profile/session manager.
func (c *Client) Session() *session.Manager { return c.session }

// Monitor exposes the network-state monitor.
func (c *Client) Monitor() *netmon.Monitor { return c.monitor }

// Remote exposes the backend client, for the change feed.
func (c *Client) Remote() *remote.Client { return c.remote }

// engine returns (building lazily) the sync engine for one section kind.
// Namespaces partition the store by (user, section kind), so each kind gets
// its own ledger and engine; keys within a namespace are resume ids.
func (c *Client) engine(t models.SectionType) (*syncer.Engine[json.RawMessage], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == "" {
		return nil, session.ErrNoSession
	}
	if e, ok := c.engines[t]; ok {
		return e, nil
	}
	e := syncer.New(syncer.Config[json.RawMessage]{
		Store:     c.store,
		Namespace: c.userID + "_" + string(t),
		Monitor:   c.monitor,
		Window:    c.cfg.SyncWindow,
		Logger:    c.log.Named("syncer"),
		Apply: func(ctx context.Context, change store.PendingChange[json.RawMessage]) error {
			if change.Operation == store.OpDelete {
				return c.remote.DeleteSection(ctx, change.Key, t)
			}
			var content json.RawMessage
			if change.Data != nil {
				content = *change.Data
			}
			return c.remote.UpsertSection(ctx, change.Key, t, content)
		},
		OnError: func(key string, err error) {
			if remote.KindOf(err) == remote.KindValidation {
				c.log.Error("section rejected by server",
					zap.String("resume_id", key), zap.String("type", string(t)), zap.Error(err))
			}
		},
	})
	c.engines[t] = e
	return e, nil
}

// EditSection applies a section edit locally and queues it for sync. The
// edit is visible to readers immediately, online or not.
func (c *Client) EditSection(resumeID string, t models.SectionType, content json.RawMessage) error {
	if !t.Valid() {
		return fmt.Errorf("unknown section type %q", t)
	}
	e, err := c.engine(t)
	if err != nil {
		return err
	}
	return e.Put(resumeID, content)
}

// DeleteSection removes a section locally and queues the removal for sync.
func (c *Client) DeleteSection(resumeID string, t models.SectionType) error {
	e, err := c.engine(t)
	if err != nil {
		return err
	}
	return e.Delete(resumeID)
}

// Section reads the locally stored content of a section. False means no
// local copy exists yet.
func (c *Client) Section(resumeID string, t models.SectionType) (json.RawMessage, bool) {
	e, err := c.engine(t)
	if err != nil {
		return nil, false
	}
	var content json.RawMessage
	ok := e.Get(resumeID, &content)
	return content, ok
}

// PullSection fetches a section from the server and stores it locally,
// without recording a pending change. Used to warm the local copy.
func (c *Client) PullSection(ctx context.Context, resumeID string, t models.SectionType) (json.RawMessage, error) {
	sec, err := c.remote.GetSection(ctx, resumeID, t)
	if err != nil {
		return nil, err
	}
	if len(sec.Content) > 0 {
		if err := c.store.Set(c.sectionNamespace(t), resumeID, sec.Content); err != nil {
			c.log.Warn("local section write failed", zap.Error(err))
		}
	}
	return sec.Content, nil
}

func (c *Client) sectionNamespace(t models.SectionType) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID + "_" + string(t)
}

// DefaultResumeID returns the locally remembered resume id for this user,
// minting and persisting one on first use. The remote record appears lazily
// once the first section write syncs.
func (c *Client) DefaultResumeID() (string, error) {
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	if userID == "" {
		return "", session.ErrNoSession
	}

	ns := userID + "_meta"
	var id string
	if c.store.Get(ns, "default_resume", &id) && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := c.store.Set(ns, "default_resume", id); err != nil {
		return "", err
	}
	return id, nil
}

// Pending returns all not-yet-synced section changes, grouped by kind.
func (c *Client) Pending() map[models.SectionType][]store.PendingChange[json.RawMessage] {
	c.mu.Lock()
	engines := make(map[models.SectionType]*syncer.Engine[json.RawMessage], len(c.engines))
	for t, e := range c.engines {
		engines[t] = e
	}
	c.mu.Unlock()

	out := make(map[models.SectionType][]store.PendingChange[json.RawMessage])
	for t, e := range engines {
		if pending := e.Pending(); len(pending) > 0 {
			out[t] = pending
		}
	}
	return out
}

// SyncNow forces an immediate pass on every engine, bypassing the throttle.
func (c *Client) SyncNow(ctx context.Context) {
	c.mu.Lock()
	engines := make([]*syncer.Engine[json.RawMessage], 0, len(c.engines))
	for _, e := range c.engines {
		engines = append(engines, e)
	}
	c.mu.Unlock()

	for _, e := range engines {
		e.SyncNow(ctx)
	}
}

// Close shuts everything down, aggregating teardown errors.
func (c *Client) Close() error {
	var err error
	c.mu.Lock()
	for _, e := range c.engines {
		e.Close()
	}
	c.engines = make(map[models.SectionType]*syncer.Engine[json.RawMessage])
	c.mu.Unlock()

	c.monitor.Close()
	err = multierr.Append(err, c.store.Close())
	err = multierr.Append(err, c.log.Sync())
	return err
}
