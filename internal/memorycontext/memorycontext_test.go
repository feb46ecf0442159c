package memorycontext

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBlock struct {
	title, body string
}

type fakeStore struct {
	blocks map[string]map[string]fakeBlock // userID -> label -> block
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocks: make(map[string]map[string]fakeBlock)}
}

func (f *fakeStore) ListBlocks(userID string) ([]string, error) {
	var labels []string
	for l := range f.blocks[userID] {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels, nil
}

func (f *fakeStore) ReadBlock(userID, label string) (string, string, error) {
	b, ok := f.blocks[userID][label]
	if !ok {
		return "", "", fmt.Errorf("not found")
	}
	return b.title, b.body, nil
}

func (f *fakeStore) WriteBlock(userID, label, body, message, author, schema, title string) (string, error) {
	if f.blocks[userID] == nil {
		f.blocks[userID] = make(map[string]fakeBlock)
	}
	f.blocks[userID][label] = fakeBlock{title: title, body: body}
	return "sha", nil
}

func TestBuildMemoryContext_EmptyWhenNoBlocks(t *testing.T) {
	store := newFakeStore()
	out, err := BuildMemoryContext(store, "alice", nil)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestBuildMemoryContext_RendersStableFormat(t *testing.T) {
	store := newFakeStore()
	_, _ = store.WriteBlock("alice", "student", "Loves math.", "", "user", "", "Student")

	out, err := BuildMemoryContext(store, "alice", nil)
	require.NoError(t, err)
	require.Equal(t, "## Student Memory\n\n### Student (label: `student`)\n\nLoves math.\n", out)
}

func TestBuildMemoryContext_DefaultsTitleAndBody(t *testing.T) {
	store := newFakeStore()
	_, _ = store.WriteBlock("alice", "origin_story", "", "", "system", "", "")

	out, err := BuildMemoryContext(store, "alice", nil)
	require.NoError(t, err)
	require.Contains(t, out, "### Origin Story (label: `origin_story`)")
	require.Contains(t, out, "(empty)")
}

func TestBuildMemoryContext_FiltersByLabel(t *testing.T) {
	store := newFakeStore()
	_, _ = store.WriteBlock("alice", "student", "a", "", "user", "", "Student")
	_, _ = store.WriteBlock("alice", "other", "b", "", "user", "", "Other")

	out, err := BuildMemoryContext(store, "alice", []string{"student"})
	require.NoError(t, err)
	require.Contains(t, out, "Student")
	require.NotContains(t, out, "Other")
}

func TestBuildMemoryContext_IsPureForIdenticalState(t *testing.T) {
	store := newFakeStore()
	_, _ = store.WriteBlock("alice", "student", "a", "", "user", "", "Student")

	out1, err := BuildMemoryContext(store, "alice", nil)
	require.NoError(t, err)
	out2, err := BuildMemoryContext(store, "alice", nil)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}

func TestEnsureWelcomeBlocks_IsIdempotent(t *testing.T) {
	store := newFakeStore()
	created, err := EnsureWelcomeBlocks(store, store, "alice")
	require.NoError(t, err)
	require.True(t, created)

	labels, err := store.ListBlocks("alice")
	require.NoError(t, err)
	require.Len(t, labels, 4)

	created, err = EnsureWelcomeBlocks(store, store, "alice")
	require.NoError(t, err)
	require.False(t, created)

	labels, err = store.ListBlocks("alice")
	require.NoError(t, err)
	require.Len(t, labels, 4)
}
