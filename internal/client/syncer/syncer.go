// Package syncer drains a namespace's pending-change ledger against the
// remote service. Passes are throttled with leading and trailing edges, so a
// burst of local edits costs at most two passes per window; the trailing
// pass runs after the burst ends.
package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atroshin/resumesync/internal/client/netmon"
	"github.com/atroshin/resumesync/internal/client/store"
)

// DefaultWindow is the throttle window unless configured otherwise.
const DefaultWindow = 5 * time.Second

// ApplyFunc pushes one pending change to the remote service. It must be a
// full-replacement write so that re-applying an already-applied change
// cannot corrupt remote state.
type ApplyFunc[T any] func(ctx context.Context, change store.PendingChange[T]) error

// Config assembles an Engine.
type Config[T any] struct {
	// Store is the local durable store.
	Store *store.Store
	// Namespace scopes both local records and the ledger.
	Namespace string
	// Monitor supplies the offline signal; a pass is a no-op while offline.
	Monitor *netmon.Monitor
	// Apply pushes one change to the remote service.
	Apply ApplyFunc[T]
	// OnError receives per-key apply failures; the pass continues past them.
	OnError func(key string, err error)
	// Window is the throttle window; 0 means DefaultWindow.
	Window time.Duration
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Engine owns one namespace of the local store and its ledger. UI code goes
// through Put/Delete/Get; it never touches the store or ledger directly.
type Engine[T any] struct {
	store     *store.Store
	ledger    *store.Ledger[T]
	namespace string
	monitor   *netmon.Monitor
	apply     ApplyFunc[T]
	onError   func(key string, err error)
	window    time.Duration
	log       *zap.Logger

	mu         sync.Mutex
	windowOpen bool
	trailing   bool
	timer      *time.Timer

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// New builds an Engine and subscribes it to the monitor: every transition to
// online schedules a sync.
func New[T any](cfg Config[T]) *Engine[T] {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine[T]{
		store:     cfg.Store,
		ledger:    store.NewLedger[T](cfg.Store, cfg.Namespace),
		namespace: cfg.Namespace,
		monitor:   cfg.Monitor,
		apply:     cfg.Apply,
		onError:   cfg.OnError,
		window:    cfg.Window,
		log:       cfg.Logger.With(zap.String("namespace", cfg.Namespace)),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.unsubscribe = cfg.Monitor.OnTransition(func(online bool) {
		if online && e.ledger.HasPending() {
			e.ScheduleSync()
		}
	})
	return e
}

// Close detaches the engine from the monitor, stops the trailing timer, and
// waits for any in-flight pass.
func (e *Engine[T]) Close() {
	e.unsubscribe()
	e.cancel()
	e.mu.Lock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Put writes value locally, records the pending change, and schedules a
// sync. A local write failure propagates and no pending change is recorded:
// the mutation is the caller's to retry.
func (e *Engine[T]) Put(key string, value T) error {
	if err := e.store.Set(e.namespace, key, value); err != nil {
		return err
	}
	if err := e.ledger.Save(key, store.OpUpdate, &value); err != nil {
		return err
	}
	e.ScheduleSync()
	return nil
}

// Delete removes the local record, records the pending delete, and schedules
// a sync.
func (e *Engine[T]) Delete(key string) error {
	e.store.Remove(e.namespace, key)
	if err := e.ledger.Save(key, store.OpDelete, nil); err != nil {
		return err
	}
	e.ScheduleSync()
	return nil
}

// Get reads the locally stored value for key.
func (e *Engine[T]) Get(key string, out *T) bool {
	return e.store.Get(e.namespace, key, out)
}

// Keys lists the locally stored keys of this namespace, the ledger entry
// excluded.
func (e *Engine[T]) Keys() []string {
	keys := e.store.ListKeys(e.namespace)
	out := keys[:0]
	for _, k := range keys {
		if k != "pending_changes" {
			out = append(out, k)
		}
	}
	return out
}

// Pending returns a snapshot of the not-yet-synced changes in drain order.
func (e *Engine[T]) Pending() []store.PendingChange[T] {
	return e.ledger.PendingInOrder()
}

// ScheduleSync requests a sync pass, throttled to at most a leading and a
// trailing pass per window. The first call in a window fires immediately;
// further calls within the window coalesce into one pass at window end.
func (e *Engine[T]) ScheduleSync() {
	e.mu.Lock()
	if e.windowOpen {
		e.trailing = true
		e.mu.Unlock()
		return
	}
	e.windowOpen = true
	e.timer = time.AfterFunc(e.window, e.windowEnd)
	e.mu.Unlock()

	e.runPass()
}

func (e *Engine[T]) windowEnd() {
	e.mu.Lock()
	fire := e.trailing
	e.trailing = false
	e.windowOpen = false
	e.mu.Unlock()

	if fire {
		e.runPass()
	}
}

func (e *Engine[T]) runPass() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.SyncNow(e.ctx)
	}()
}

// SyncNow runs one sync pass immediately, bypassing the throttle. While
// offline it is a no-op: no remote call is ever attempted. The pass drains a
// snapshot of the ledger taken at its start; changes recorded during the
// pass wait for the next one.
func (e *Engine[T]) SyncNow(ctx context.Context) {
	if e.monitor.Offline() {
		return
	}

	changes := e.ledger.PendingInOrder()
	if len(changes) == 0 {
		return
	}
	e.log.Debug("sync pass started", zap.Int("pending", len(changes)))

	for _, change := range changes {
		if ctx.Err() != nil {
			return
		}
		if err := e.apply(ctx, change); err != nil {
			// Keep the entry for the next pass and move on; one bad
			// record must not block the rest.
			e.log.Warn("pending change apply failed",
				zap.String("key", change.Key),
				zap.String("operation", string(change.Operation)),
				zap.Error(err))
			if e.onError != nil {
				e.onError(change.Key, err)
			}
			continue
		}
		// Guard the clear by revision: an edit recorded while this apply
		// was in flight supersedes it and must stay queued.
		if err := e.ledger.ClearIfUnchanged(change.Key, change.Rev); err != nil {
			e.log.Warn("pending change clear failed",
				zap.String("key", change.Key), zap.Error(err))
		}
	}
}
