package gitrepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	repo := Open(dir)
	require.NoError(t, repo.Init("tutor-system", "system@tutord.local"))
	return repo
}

func writeAndCommit(t *testing.T, repo *Repo, relPath, content, message string) CommitResult {
	t.Helper()
	full := filepath.Join(repo.Path(), relPath)
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	require.NoError(t, repo.Add(relPath))
	res, err := repo.Commit(message)
	require.NoError(t, err)
	return res
}

func TestCommit_SkipsEmptyCommit(t *testing.T) {
	repo := newTestRepo(t)
	first := writeAndCommit(t, repo, "a.md", "hello", "first")
	require.False(t, first.Skipped)

	require.NoError(t, repo.Add("a.md"))
	second, err := repo.Commit("no-op")
	require.NoError(t, err)
	require.True(t, second.Skipped)
	require.Equal(t, first.SHA, second.SHA)
}

func TestReadBlob_ReadsFromCommitTreeNotWorkingDir(t *testing.T) {
	repo := newTestRepo(t)
	first := writeAndCommit(t, repo, "a.md", "v1", "first")
	writeAndCommit(t, repo, "a.md", "v2", "second")

	body, ok, err := repo.ReadBlob(first.SHA, "a.md")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", body)

	body, ok, err = repo.ReadBlob("HEAD", "a.md")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", body)
}

func TestReadBlob_MissingPathReturnsNotOk(t *testing.T) {
	repo := newTestRepo(t)
	writeAndCommit(t, repo, "a.md", "v1", "first")

	_, ok, err := repo.ReadBlob("HEAD", "missing.md")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListTree_ListsEntriesAtCommitIgnoringLaterWorkingTreeChanges(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(repo.Path(), "memory-blocks"), 0o755))
	writeAndCommit(t, repo, "memory-blocks/student.md", "v1", "first")
	writeAndCommit(t, repo, "memory-blocks/goals.md", "v1", "second")

	names, err := repo.ListTree("HEAD", "memory-blocks")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"goals.md", "student.md"}, names)
}

func TestListTree_MissingDirReturnsEmpty(t *testing.T) {
	repo := newTestRepo(t)
	names, err := repo.ListTree("HEAD", "memory-blocks")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestBranchLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	writeAndCommit(t, repo, "a.md", "v1", "first")

	exists, err := repo.BranchExists("agent/u1/a")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, repo.CreateBranch("agent/u1/a", "HEAD"))
	exists, err = repo.BranchExists("agent/u1/a")
	require.NoError(t, err)
	require.True(t, exists)

	branches, err := repo.ListBranches("agent/u1/")
	require.NoError(t, err)
	require.Equal(t, []string{"agent/u1/a"}, branches)

	require.NoError(t, repo.DeleteBranch("agent/u1/a", true))
	exists, err = repo.BranchExists("agent/u1/a")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestMergeNoFF_ConflictIsReportedNotFatal(t *testing.T) {
	repo := newTestRepo(t)
	writeAndCommit(t, repo, "a.md", "base", "base")

	require.NoError(t, repo.CreateBranch("agent/u1/a", "HEAD"))
	require.NoError(t, repo.Checkout("agent/u1/a"))
	writeAndCommit(t, repo, "a.md", "from-branch", "branch edit")
	require.NoError(t, repo.Checkout("main"))
	writeAndCommit(t, repo, "a.md", "from-main", "main edit")

	result, err := repo.MergeNoFF("agent/u1/a", "merge attempt")
	require.NoError(t, err)
	require.True(t, result.Conflict)

	dirty, err := repo.HasUncommittedChanges()
	require.NoError(t, err)
	require.False(t, dirty)
}
