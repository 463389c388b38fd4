// Package store implements the client's local durable storage: a namespaced
// key/value store backed by BadgerDB, and the pending-change ledger layered
// on top of it.
//
// Physical keys are "{namespace}_{key}". Values are wrapped in an envelope
// carrying a last-updated timestamp so that capacity eviction can rank
// entries by age.
package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrCapacity is returned when a namespace is full and eviction could not
// free enough room for the write.
var ErrCapacity = errors.New("store: namespace capacity exhausted")

// DefaultNamespaceQuota caps entries per namespace unless overridden.
const DefaultNamespaceQuota = 1000

// evictMinEntries is the floor on how many entries one eviction removes.
const evictMinEntries = 5

// envelope wraps every stored value with its last-updated timestamp.
type envelope struct {
	UpdatedAt int64           `json:"updated_at"`
	Value     json.RawMessage `json:"value"`
}

// Store is a namespaced durable key/value store. Reads never fail: a missing
// or undecodable entry reads as absent. Writes fail only after a capacity
// eviction and a single retry could not make room.
type Store struct {
	db    *badger.DB
	quota int
	log   *zap.Logger
	now   func() time.Time
}

// Options configures a Store.
type Options struct {
	// Dir is the directory holding the Badger database. Ignored when
	// InMemory is set.
	Dir string
	// InMemory keeps all data in memory, for tests.
	InMemory bool
	// NamespaceQuota caps entries per namespace; 0 means DefaultNamespaceQuota.
	NamespaceQuota int
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
}

// Open opens (or creates) the store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NamespaceQuota <= 0 {
		opts.NamespaceQuota = DefaultNamespaceQuota
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Dir, err)
	}

	return &Store{
		db:    db,
		quota: opts.NamespaceQuota,
		log:   opts.Logger,
		now:   time.Now,
	}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func physKey(namespace, key string) []byte {
	return []byte(namespace + "_" + key)
}

// Get reads the value stored under (namespace, key) into out. It returns
// false on a miss or an undecodable entry; storage errors are logged, never
// propagated, so a corrupt entry can never block a caller.
func (s *Store) Get(namespace, key string, out any) bool {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(physKey(namespace, key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false
	}
	if err != nil {
		s.log.Warn("store read failed",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return false
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.log.Warn("store entry corrupt",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(env.Value, out); err != nil {
		s.log.Warn("store entry corrupt",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores value under (namespace, key). When the namespace is at its
// entry quota, the oldest fifth of the namespace (at least five entries) is
// evicted and the write retried exactly once. A second failure propagates
// and the mutation must be treated as not persisted.
func (s *Store) Set(namespace, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s_%s: %w", namespace, key, err)
	}
	raw, err := json.Marshal(envelope{UpdatedAt: s.now().UnixMilli(), Value: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope %s_%s: %w", namespace, key, err)
	}

	if err := s.trySet(namespace, key, raw); err != nil {
		s.log.Warn("store write failed, evicting",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
		s.evict(namespace)
		if err := s.trySet(namespace, key, raw); err != nil {
			return fmt.Errorf("set %s_%s after eviction: %w", namespace, key, err)
		}
	}
	return nil
}

func (s *Store) trySet(namespace, key string, raw []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(physKey(namespace, key)); errors.Is(err, badger.ErrKeyNotFound) {
			// New key: enforce the namespace quota before growing.
			if s.countLocked(txn, namespace) >= s.quota {
				return ErrCapacity
			}
		}
		return txn.Set(physKey(namespace, key), raw)
	})
}

// Remove deletes (namespace, key). Failures are logged and swallowed; a
// missing key is not an error.
func (s *Store) Remove(namespace, key string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(physKey(namespace, key))
	})
	if err != nil {
		s.log.Warn("store delete failed",
			zap.String("namespace", namespace), zap.String("key", key), zap.Error(err))
	}
}

// ListKeys returns every key in the namespace, unordered.
func (s *Store) ListKeys(namespace string) []string {
	prefix := []byte(namespace + "_")
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key())[len(prefix):])
		}
		return nil
	})
	if err != nil {
		s.log.Warn("store list failed", zap.String("namespace", namespace), zap.Error(err))
		return nil
	}
	return keys
}

func (s *Store) countLocked(txn *badger.Txn, namespace string) int {
	prefix := []byte(namespace + "_")
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// evict removes the oldest 20% of the namespace (minimum five entries),
// ranking by the envelope timestamp and treating undecodable entries as
// epoch zero so they go first.
func (s *Store) evict(namespace string) {
	type aged struct {
		key       string
		updatedAt int64
	}
	prefix := []byte(namespace + "_")

	var entries []aged
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())[len(prefix):]
			var ts int64
			_ = item.Value(func(val []byte) error {
				var env envelope
				if err := json.Unmarshal(val, &env); err == nil {
					ts = env.UpdatedAt
				}
				return nil
			})
			entries = append(entries, aged{key: key, updatedAt: ts})
		}
		return nil
	})
	if err != nil {
		s.log.Warn("eviction scan failed", zap.String("namespace", namespace), zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].updatedAt < entries[j].updatedAt })

	n := len(entries) / 5
	if n < evictMinEntries {
		n = evictMinEntries
	}
	if n > len(entries) {
		n = len(entries)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries[:n] {
			if err := txn.Delete(physKey(namespace, e.key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn("eviction failed", zap.String("namespace", namespace), zap.Error(err))
		return
	}
	s.log.Info("evicted oldest entries",
		zap.String("namespace", namespace), zap.Int("removed", n))
}
