package store

import (
	"sort"
	"sync"
	"time"
)

// ledgerKey is the single store entry holding a namespace's whole ledger,
// persisted as "{namespace}_pending_changes".
const ledgerKey = "pending_changes"

// Operation is the kind of a pending mutation.
type Operation string

const (
	// OpUpdate records a local write that has not reached the server.
	OpUpdate Operation = "update"
	// OpDelete records a local removal that has not reached the server.
	OpDelete Operation = "delete"
)

// PendingChange is one locally applied mutation awaiting remote confirmation.
type PendingChange[T any] struct {
	// Key identifies the mutated record within the namespace.
	Key string `json:"key"`
	// Operation is update or delete.
	Operation Operation `json:"operation"`
	// Data carries the new value for updates; nil for deletes.
	Data *T `json:"data,omitempty"`
	// Timestamp is when the mutation was recorded, epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
	// Seq preserves ledger insertion order. Overwriting an existing key
	// keeps that key's original Seq, so drain order is stable.
	Seq int64 `json:"seq"`
	// Rev is unique per Save. A drain that applied one revision must not
	// clear a newer one recorded while the apply was in flight.
	Rev int64 `json:"rev"`
}

// ledgerDoc is the persisted form of the ledger: the entire change map in
// one store entry. Every mutation is a read-modify-write of this document;
// O(1) store operations regardless of how many changes are pending.
type ledgerDoc[T any] struct {
	Changes map[string]PendingChange[T] `json:"changes"`
	NextSeq int64                       `json:"next_seq"`
}

// Ledger tracks not-yet-synced mutations for one namespace. At most one
// pending change exists per key; a newer change for the same key overwrites
// the older one.
type Ledger[T any] struct {
	store     *Store
	namespace string

	mu  sync.Mutex
	now func() time.Time
}

// NewLedger returns the ledger for the given namespace.
func NewLedger[T any](s *Store, namespace string) *Ledger[T] {
	return &Ledger[T]{store: s, namespace: namespace, now: time.Now}
}

// Namespace returns the namespace this ledger belongs to.
func (l *Ledger[T]) Namespace() string { return l.namespace }

func (l *Ledger[T]) load() ledgerDoc[T] {
	var doc ledgerDoc[T]
	if !l.store.Get(l.namespace, ledgerKey, &doc) || doc.Changes == nil {
		doc.Changes = make(map[string]PendingChange[T])
	}
	return doc
}

// Save records a pending change for key, overwriting any prior entry for the
// same key and stamping the current time.
func (l *Ledger[T]) Save(key string, op Operation, data *T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.load()
	rev := doc.NextSeq
	doc.NextSeq++
	seq := rev
	if prev, ok := doc.Changes[key]; ok {
		seq = prev.Seq
	}
	doc.Changes[key] = PendingChange[T]{
		Key:       key,
		Operation: op,
		Data:      data,
		Timestamp: l.now().UnixMilli(),
		Seq:       seq,
		Rev:       rev,
	}
	return l.store.Set(l.namespace, ledgerKey, doc)
}

// Clear removes the pending change for key, if any.
func (l *Ledger[T]) Clear(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.load()
	if _, ok := doc.Changes[key]; !ok {
		return nil
	}
	return l.removeLocked(doc, key)
}

// ClearIfUnchanged removes the pending change for key only when its revision
// still matches rev. A change saved for the same key after rev was read stays
// queued for the next drain.
func (l *Ledger[T]) ClearIfUnchanged(key string, rev int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.load()
	entry, ok := doc.Changes[key]
	if !ok || entry.Rev != rev {
		return nil
	}
	return l.removeLocked(doc, key)
}

func (l *Ledger[T]) removeLocked(doc ledgerDoc[T], key string) error {
	delete(doc.Changes, key)
	if len(doc.Changes) == 0 {
		l.store.Remove(l.namespace, ledgerKey)
		return nil
	}
	return l.store.Set(l.namespace, ledgerKey, doc)
}

// Pending returns a snapshot of all pending changes keyed by record key.
func (l *Ledger[T]) Pending() map[string]PendingChange[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc := l.load()
	out := make(map[string]PendingChange[T], len(doc.Changes))
	for k, v := range doc.Changes {
		out[k] = v
	}
	return out
}

// PendingInOrder returns a snapshot of all pending changes in insertion
// order.
func (l *Ledger[T]) PendingInOrder() []PendingChange[T] {
	pending := l.Pending()
	out := make([]PendingChange[T], 0, len(pending))
	for _, ch := range pending {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// HasPending reports whether any change awaits sync.
func (l *Ledger[T]) HasPending() bool {
	return len(l.Pending()) > 0
}
