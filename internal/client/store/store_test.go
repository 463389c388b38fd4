package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, quota int) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true, NamespaceQuota: quota})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_SetGetRoundtrip(t *testing.T) {
	s := openTestStore(t, 0)

	type doc struct {
		Title string `json:"title"`
		Score int    `json:"score"`
	}
	in := doc{Title: "senior gopher", Score: 42}
	require.NoError(t, s.Set("u1_summary", "r1", in))

	var out doc
	require.True(t, s.Get("u1_summary", "r1", &out))
	assert.Equal(t, in, out)
}

func TestStore_GetMiss(t *testing.T) {
	s := openTestStore(t, 0)

	var out string
	assert.False(t, s.Get("u1_summary", "nope", &out))
}

func TestStore_NamespaceIsolation(t *testing.T) {
	s := openTestStore(t, 0)

	require.NoError(t, s.Set("u1_skills", "r1", "go"))
	require.NoError(t, s.Set("u2_skills", "r1", "rust"))

	var got string
	require.True(t, s.Get("u1_skills", "r1", &got))
	assert.Equal(t, "go", got)
	require.True(t, s.Get("u2_skills", "r1", &got))
	assert.Equal(t, "rust", got)

	assert.ElementsMatch(t, []string{"r1"}, s.ListKeys("u1_skills"))
}

func TestStore_Remove(t *testing.T) {
	s := openTestStore(t, 0)

	require.NoError(t, s.Set("u1_skills", "r1", "go"))
	s.Remove("u1_skills", "r1")

	var got string
	assert.False(t, s.Get("u1_skills", "r1", &got))

	// Removing a missing key is not an error.
	s.Remove("u1_skills", "r1")
}

func TestStore_CorruptEntryReadsAsAbsent(t *testing.T) {
	s := openTestStore(t, 0)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(physKey("u1_skills", "bad"), []byte("{not json"))
	})
	require.NoError(t, err)

	var got string
	assert.False(t, s.Get("u1_skills", "bad", &got))
}

func TestStore_TypeMismatchReadsAsAbsent(t *testing.T) {
	s := openTestStore(t, 0)

	require.NoError(t, s.Set("u1_skills", "r1", []string{"go", "sql"}))

	var got int
	assert.False(t, s.Get("u1_skills", "r1", &got))
}

func TestStore_EvictsOldestWhenFull(t *testing.T) {
	s := openTestStore(t, 10)

	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set("u1_projects", fmt.Sprintf("r%d", i), i))
		clock = clock.Add(time.Second)
	}
	require.Len(t, s.ListKeys("u1_projects"), 10)

	// The 11th key triggers eviction of the oldest max(20%, 5) = 5 entries,
	// then the write succeeds on retry.
	require.NoError(t, s.Set("u1_projects", "r10", 10))

	keys := s.ListKeys("u1_projects")
	assert.Len(t, keys, 6)
	for i := 0; i < 5; i++ {
		var got int
		assert.False(t, s.Get("u1_projects", fmt.Sprintf("r%d", i), &got), "r%d should be evicted", i)
	}
	for i := 5; i <= 10; i++ {
		var got int
		require.True(t, s.Get("u1_projects", fmt.Sprintf("r%d", i), &got), "r%d should survive", i)
		assert.Equal(t, i, got)
	}
}

func TestStore_OverwriteDoesNotCountAgainstQuota(t *testing.T) {
	s := openTestStore(t, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Set("u1_skills", fmt.Sprintf("r%d", i), i))
	}
	// Rewriting an existing key must not trip the quota.
	require.NoError(t, s.Set("u1_skills", "r0", 99))

	var got int
	require.True(t, s.Get("u1_skills", "r0", &got))
	assert.Equal(t, 99, got)
	assert.Len(t, s.ListKeys("u1_skills"), 3)
}

func TestStore_QuotaIsPerNamespace(t *testing.T) {
	s := openTestStore(t, 6)

	for i := 0; i < 6; i++ {
		require.NoError(t, s.Set("u1_education", fmt.Sprintf("r%d", i), i))
	}
	// A different namespace has its own quota.
	require.NoError(t, s.Set("u1_summary", "r0", "untouched"))
	assert.Len(t, s.ListKeys("u1_education"), 6)
	assert.Len(t, s.ListKeys("u1_summary"), 1)
}
