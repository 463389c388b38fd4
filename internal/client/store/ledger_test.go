package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestLedger_SavePending(t *testing.T) {
	s := openTestStore(t, 0)
	l := NewLedger[string](s, "u1_skills")

	require.NoError(t, l.Save("r1", OpUpdate, strptr("go")))
	require.NoError(t, l.Save("r2", OpDelete, nil))

	pending := l.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, OpUpdate, pending["r1"].Operation)
	require.NotNil(t, pending["r1"].Data)
	assert.Equal(t, "go", *pending["r1"].Data)
	assert.Equal(t, OpDelete, pending["r2"].Operation)
	assert.Nil(t, pending["r2"].Data)
	assert.True(t, l.HasPending())
}

func TestLedger_OverwriteKeepsOneChangePerKey(t *testing.T) {
	s := openTestStore(t, 0)
	l := NewLedger[string](s, "u1_skills")

	require.NoError(t, l.Save("r1", OpUpdate, strptr("draft")))
	require.NoError(t, l.Save("r1", OpUpdate, strptr("final")))

	pending := l.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "final", *pending["r1"].Data)
}

func TestLedger_OverwritePreservesOrder(t *testing.T) {
	s := openTestStore(t, 0)
	l := NewLedger[string](s, "u1_skills")

	require.NoError(t, l.Save("a", OpUpdate, strptr("1")))
	require.NoError(t, l.Save("b", OpUpdate, strptr("2")))
	require.NoError(t, l.Save("c", OpUpdate, strptr("3")))
	// Rewriting an existing key keeps its original position in the drain
	// order; it does not jump to the back.
	require.NoError(t, l.Save("a", OpUpdate, strptr("4")))

	ordered := l.PendingInOrder()
	require.Len(t, ordered, 3)
	assert.Equal(t, []string{"a", "b", "c"},
		[]string{ordered[0].Key, ordered[1].Key, ordered[2].Key})
	assert.Equal(t, "4", *ordered[0].Data)
}

func TestLedger_DeleteAfterUpdateWins(t *testing.T) {
	s := openTestStore(t, 0)
	l := NewLedger[string](s, "u1_skills")

	require.NoError(t, l.Save("r1", OpUpdate, strptr("go")))
	require.NoError(t, l.Save("r1", OpDelete, nil))

	pending := l.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, OpDelete, pending["r1"].Operation)
	assert.Nil(t, pending["r1"].Data)
}

func TestLedger_Clear(t *testing.T) {
	s := openTestStore(t, 0)
	l := NewLedger[string](s, "u1_skills")

	require.NoError(t, l.Save("r1", OpUpdate, strptr("go")))
	require.NoError(t, l.Save("r2", OpUpdate, strptr("sql")))

	require.NoError(t, l.Clear("r1"))
	pending := l.Pending()
	require.Len(t, pending, 1)
	assert.Contains(t, pending, "r2")

	require.NoError(t, l.Clear("r2"))
	assert.False(t, l.HasPending())
	// The backing entry is gone once the ledger empties.
	var doc ledgerDoc[string]
	assert.False(t, s.Get("u1_skills", ledgerKey, &doc))

	// Clearing an unknown key is a no-op.
	require.NoError(t, l.Clear("r9"))
}

func TestLedger_ClearIfUnchanged(t *testing.T) {
	s := openTestStore(t, 0)
	l := NewLedger[string](s, "u1_skills")

	require.NoError(t, l.Save("r1", OpUpdate, strptr("draft")))
	snapshot := l.Pending()["r1"]

	// The key was rewritten after the snapshot was taken; clearing against
	// the stale revision must leave the newer change queued.
	require.NoError(t, l.Save("r1", OpUpdate, strptr("final")))
	require.NoError(t, l.ClearIfUnchanged("r1", snapshot.Rev))
	pending := l.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "final", *pending["r1"].Data)

	// Clearing against the current revision removes the entry.
	require.NoError(t, l.ClearIfUnchanged("r1", pending["r1"].Rev))
	assert.False(t, l.HasPending())

	// Unknown keys are a no-op.
	require.NoError(t, l.ClearIfUnchanged("r9", 0))
}

func TestLedger_Timestamps(t *testing.T) {
	s := openTestStore(t, 0)
	l := NewLedger[string](s, "u1_skills")

	clock := time.UnixMilli(1_700_000_000_000)
	l.now = func() time.Time { return clock }

	require.NoError(t, l.Save("r1", OpUpdate, strptr("go")))
	assert.Equal(t, clock.UnixMilli(), l.Pending()["r1"].Timestamp)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	l := NewLedger[string](s, "u1_skills")
	require.NoError(t, l.Save("r1", OpUpdate, strptr("go")))
	require.NoError(t, l.Save("r2", OpDelete, nil))
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer s.Close()

	l = NewLedger[string](s, "u1_skills")
	ordered := l.PendingInOrder()
	require.Len(t, ordered, 2)
	assert.Equal(t, "r1", ordered[0].Key)
	assert.Equal(t, "r2", ordered[1].Key)
}

func TestLedger_NamespacesAreIndependent(t *testing.T) {
	s := openTestStore(t, 0)
	skills := NewLedger[string](s, "u1_skills")
	projects := NewLedger[string](s, "u1_projects")

	require.NoError(t, skills.Save("r1", OpUpdate, strptr("go")))

	assert.True(t, skills.HasPending())
	assert.False(t, projects.HasPending())
}
