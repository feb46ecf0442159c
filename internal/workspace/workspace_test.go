package workspace

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tutord/tutor-runtime/internal/apperr"
)

func TestWriteReadFile_RoundTrips(t *testing.T) {
	store := New(t.TempDir())
	info, err := store.WriteFile("alice", "notes/todo.md", []byte("buy milk"), "agent")
	require.NoError(t, err)
	require.Equal(t, "notes/todo.md", info.Path)
	require.Equal(t, int64(8), info.Size)

	data, err := store.ReadFile("alice", "notes/todo.md")
	require.NoError(t, err)
	require.Equal(t, "buy milk", string(data))
}

func TestWriteFile_RejectsPathEscape(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.WriteFile("alice", "../../etc/passwd", []byte("x"), "agent")
	require.Error(t, err)
	require.Equal(t, apperr.InvalidPath, apperr.KindOf(err))
	_, err = store.ReadFile("alice", "etc/passwd")
	require.Error(t, err) // nothing was written inside the root either
}

func TestWriteFile_RejectsOversizedFile(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.WriteFile("alice", "big.bin", make([]byte, MaxFileSize+1), "agent")
	require.Error(t, err)
	require.Equal(t, apperr.FileTooLarge, apperr.KindOf(err))
}

func TestReadFile_MissingReturnsNotFound(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.ReadFile("alice", "nope.txt")
	require.Error(t, err)
	require.Equal(t, apperr.BlockNotFound, apperr.KindOf(err))
}

func TestDeleteFile_RemovesFromIndex(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.WriteFile("alice", "a.txt", []byte("hi"), "agent")
	require.NoError(t, err)

	require.NoError(t, store.DeleteFile("alice", "a.txt"))

	files, total, err := store.ListFiles("alice")
	require.NoError(t, err)
	require.Empty(t, files)
	require.Zero(t, total)
}

func TestListFiles_ReportsTotalSizeAndHash(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.WriteFile("alice", "a.txt", []byte("hello"), "agent")
	require.NoError(t, err)
	_, err = store.WriteFile("alice", "sub/b.txt", []byte("world!"), "agent")
	require.NoError(t, err)

	files, total, err := store.ListFiles("alice")
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, int64(11), total)
	for _, f := range files {
		require.Contains(t, f.Hash, "sha256:")
	}
}

func TestReadClaudeMD_ReturnsVerbatimWhenPresent(t *testing.T) {
	store := New(t.TempDir())
	_, err := store.WriteFile("alice", "CLAUDE.md", []byte("# Instructions\n"), "")
	require.NoError(t, err)

	content, found, err := store.ReadClaudeMD("alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "# Instructions\n", content)
}

func TestReadClaudeMD_AbsentIsNotAnError(t *testing.T) {
	store := New(t.TempDir())
	_, found, err := store.ReadClaudeMD("alice")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSharedStore_AllUsersSeeSameTree(t *testing.T) {
	shared := t.TempDir()
	store := NewShared(t.TempDir(), shared)

	_, err := store.WriteFile("alice", "shared.txt", []byte("x"), "")
	require.NoError(t, err)

	data, err := store.ReadFile("bob", "shared.txt")
	require.NoError(t, err)
	require.Equal(t, "x", string(data))
}
