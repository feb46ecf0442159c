package pendingdiff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveGet_RoundTrips(t *testing.T) {
	store := NewStore(t.TempDir())
	diff := New("alice", "agent-1", "student", OpFullReplace, "old", "new", "reason", ConfidenceMedium)
	require.NoError(t, store.Save(diff))

	got, err := store.Get("alice", diff.ID)
	require.NoError(t, err)
	require.Equal(t, diff.ProposedValue, got.ProposedValue)
	require.Equal(t, StatusPending, got.Status)
}

func TestListPending_SortedNewestFirstAndFiltered(t *testing.T) {
	store := NewStore(t.TempDir())
	d1 := New("alice", "agent-1", "student", OpFullReplace, "a", "b", "r1", ConfidenceLow)
	require.NoError(t, store.Save(d1))
	d2 := New("alice", "agent-1", "other", OpFullReplace, "a", "b", "r2", ConfidenceLow)
	require.NoError(t, store.Save(d2))
	d3 := New("alice", "agent-2", "student", OpFullReplace, "a", "c", "r3", ConfidenceLow)
	d3.CreatedAt = d1.CreatedAt.Add(time.Hour)
	require.NoError(t, store.Save(d3))

	all, err := store.ListPending("alice", "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, d3.ID, all[0].ID)

	filtered, err := store.ListPending("alice", "student")
	require.NoError(t, err)
	require.Len(t, filtered, 2)
}

func TestUpdateStatus_RejectsNonPendingTransition(t *testing.T) {
	store := NewStore(t.TempDir())
	diff := New("alice", "agent-1", "student", OpFullReplace, "a", "b", "r", ConfidenceLow)
	require.NoError(t, store.Save(diff))

	require.NoError(t, store.UpdateStatus("alice", diff.ID, StatusApproved, "sha123"))

	err := store.UpdateStatus("alice", diff.ID, StatusRejected, "")
	require.Error(t, err)
}

func TestSupersedeOlder_MarksOthersNotKept(t *testing.T) {
	store := NewStore(t.TempDir())
	d1 := New("alice", "agent-1", "student", OpFullReplace, "a", "b", "r1", ConfidenceLow)
	d2 := New("alice", "agent-2", "student", OpFullReplace, "a", "c", "r2", ConfidenceLow)
	require.NoError(t, store.Save(d1))
	require.NoError(t, store.Save(d2))

	count, err := store.SupersedeOlder("alice", "student", d2.ID)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got1, err := store.Get("alice", d1.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSuperseded, got1.Status)

	got2, err := store.Get("alice", d2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got2.Status)
}

func TestCountPending_GroupsByLabel(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(New("alice", "a1", "student", OpFullReplace, "a", "b", "r", ConfidenceLow)))
	require.NoError(t, store.Save(New("alice", "a1", "student", OpFullReplace, "a", "b", "r", ConfidenceLow)))
	require.NoError(t, store.Save(New("alice", "a1", "origin_story", OpFullReplace, "a", "b", "r", ConfidenceLow)))

	counts, err := store.CountPending("alice")
	require.NoError(t, err)
	require.Equal(t, 2, counts["student"])
	require.Equal(t, 1, counts["origin_story"])
}
