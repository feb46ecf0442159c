package blockstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tutord/tutor-runtime/internal/apperr"
	"github.com/tutord/tutor-runtime/internal/gitrepo"
)

const (
	blocksDir      = "memory-blocks"
	gitignoreName  = ".gitignore"
	systemCommitter = "tutor-system"
	systemEmail     = "system@tutord.local"
)

// Store is the per-user git-backed block store (spec.md C1). One Store
// instance serves every user under a single data root.
type Store struct {
	dataRoot string

	mu     sync.Mutex // guards locks map only
	locks  map[string]*sync.Mutex
}

// New creates a Store rooted at dataRoot (expects dataRoot/users/{id}/...).
func New(dataRoot string) *Store {
	return &Store{
		dataRoot: dataRoot,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Store) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *Store) userDir(userID string) string {
	return filepath.Join(s.dataRoot, "users", userID)
}

func (s *Store) blockPath(userID, label string) string {
	return filepath.Join(blocksDir, label+".md")
}

func (s *Store) repo(userID string) *gitrepo.Repo {
	return gitrepo.Open(s.userDir(userID))
}

// Init idempotently creates the user's directory and git repository.
func (s *Store) Init(userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.initLocked(userID)
}

func (s *Store) initLocked(userID string) error {
	dir := s.userDir(userID)
	gitDir := filepath.Join(dir, ".git")
	if _, err := os.Stat(gitDir); err == nil {
		return nil // already initialized, no-op
	}

	if err := os.MkdirAll(filepath.Join(dir, blocksDir), 0o755); err != nil {
		return apperr.Wrap(apperr.Internal, "create user directory", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "pending_diffs"), 0o755); err != nil {
		return apperr.Wrap(apperr.Internal, "create pending_diffs directory", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "workspace"), 0o755); err != nil {
		return apperr.Wrap(apperr.Internal, "create workspace directory", err)
	}

	repo := s.repo(userID)
	if err := repo.Init(systemCommitter, systemEmail); err != nil {
		return apperr.Wrap(apperr.Internal, "init git repository", err)
	}

	gitignorePath := filepath.Join(dir, gitignoreName)
	if err := os.WriteFile(gitignorePath, []byte("*.pyc\n__pycache__/\n.sync_state.json\n"), 0o644); err != nil {
		return apperr.Wrap(apperr.Internal, "write .gitignore", err)
	}
	if err := repo.Add(gitignoreName); err != nil {
		return apperr.Wrap(apperr.Internal, "stage .gitignore", err)
	}
	if _, err := repo.Commit("Initialize user storage"); err != nil {
		return apperr.Wrap(apperr.Internal, "commit initial state", err)
	}
	return nil
}

// CurrentBranch returns the branch currently checked out for a user's repo.
// Foreground reads should always observe "main"; this exists mainly so
// callers (and tests) can assert that invariant after a proposal operation.
func (s *Store) CurrentBranch(userID string) (string, error) {
	branch, err := s.repo(userID).CurrentBranch()
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "read current branch", err)
	}
	return branch, nil
}

// Exists reports whether the user's repository has been initialized.
func (s *Store) Exists(userID string) bool {
	_, err := os.Stat(filepath.Join(s.userDir(userID), ".git"))
	return err == nil
}

// ListBlocks enumerates the labels of every block tracked on main. Reads the
// "main" branch tip's tree directly rather than the working directory, so a
// concurrent proposal checkout onto an agent/* branch cannot leak into the
// result (spec §4.1 Concurrency).
func (s *Store) ListBlocks(userID string) ([]string, error) {
	entries, err := s.repo(userID).ListTree("main", blocksDir)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list memory-blocks tree", err)
	}
	var labels []string
	for _, name := range entries {
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		labels = append(labels, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(labels)
	return labels, nil
}

// ReadBlock reads a block's content as committed on main. Returns
// apperr.BlockNotFound if absent. Reads the blob from main's commit tree
// rather than the working directory, so a concurrent proposal checkout onto
// an agent/* branch cannot leak into the reader's view (spec §4.1
// Concurrency).
func (s *Store) ReadBlock(userID, label string) (*Block, error) {
	relPath := s.blockPath(userID, label)
	content, ok, err := s.repo(userID).ReadBlob("main", relPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read block blob", err)
	}
	if !ok {
		return nil, apperr.New(apperr.BlockNotFound, fmt.Sprintf("block %q not found", label))
	}
	fm, body := parseFrontMatter(content)
	title := fm.Title
	if title == "" {
		title = defaultTitle(label)
	}
	return &Block{
		Label:     label,
		Title:     title,
		SchemaRef: fm.Schema,
		Body:      body,
		UpdatedAt: parseISO(fm.UpdatedAt),
	}, nil
}

// WriteBlock writes content as a new commit on main. message defaults to
// "Update {label} block" when empty.
func (s *Store) WriteBlock(userID, label, body, message, author, schema, title string) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.initLocked(userID); err != nil {
		return "", err
	}
	repo := s.repo(userID)
	if err := ensureOnMain(repo); err != nil {
		return "", err
	}

	relPath := s.blockPath(userID, label)
	full := filepath.Join(s.userDir(userID), relPath)

	existingFM := frontMatter{}
	if raw, err := os.ReadFile(full); err == nil {
		existingFM, _ = parseFrontMatter(string(raw))
	}

	fm := frontMatter{
		Block:     label,
		Title:     existingFM.Title,
		Schema:    existingFM.Schema,
		UpdatedAt: nowISO(),
	}
	if title != "" {
		fm.Title = title
	} else if fm.Title == "" {
		fm.Title = defaultTitle(label)
	}
	if schema != "" {
		fm.Schema = schema
	}

	rendered, err := formatFrontMatter(fm, body)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "render front matter", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", apperr.Wrap(apperr.Internal, "create memory-blocks directory", err)
	}
	if err := os.WriteFile(full, []byte(rendered), 0o644); err != nil {
		return "", apperr.Wrap(apperr.Internal, "write block file", err)
	}
	if err := repo.Add(relPath); err != nil {
		return "", apperr.Wrap(apperr.Internal, "stage block file", err)
	}

	if message == "" {
		message = fmt.Sprintf("Update %s block", label)
	}
	res, err := repo.Commit(formatHumanCommit(message, author))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "commit block write", err)
	}
	return res.SHA, nil
}

// GetBlockHistory returns up to limit commits touching the block, newest
// first, with the newest marked IsCurrent.
func (s *Store) GetBlockHistory(userID, label string, limit int) ([]Version, error) {
	repo := s.repo(userID)
	entries, err := repo.Log("main", s.blockPath(userID, label), limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read block history", err)
	}
	versions := make([]Version, 0, len(entries))
	for i, e := range entries {
		versions = append(versions, Version{
			CommitSHA: e.SHA,
			Message:   firstLine(e.Message),
			Author:    extractAuthor(e.Message),
			Timestamp: parseISO(e.Timestamp),
			IsCurrent: i == 0,
		})
	}
	return versions, nil
}

// GetBlockAtVersion reads a block's raw body as of a specific commit.
// Returns apperr.VersionNotFound if the path did not exist at that commit.
func (s *Store) GetBlockAtVersion(userID, label, commitSHA string) (string, error) {
	repo := s.repo(userID)
	content, ok, err := repo.ReadBlob(commitSHA, s.blockPath(userID, label))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "read blob", err)
	}
	if !ok {
		return "", apperr.New(apperr.VersionNotFound, fmt.Sprintf("version %s not found for %s", shortSHA(commitSHA), label))
	}
	_, body := parseFrontMatter(content)
	return body, nil
}

// RestoreBlock writes the body recorded at commitSHA as a new commit.
func (s *Store) RestoreBlock(userID, label, commitSHA, author string) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo := s.repo(userID)
	if err := ensureOnMain(repo); err != nil {
		return "", err
	}
	content, ok, err := repo.ReadBlob(commitSHA, s.blockPath(userID, label))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "read blob for restore", err)
	}
	if !ok {
		return "", apperr.New(apperr.VersionNotFound, fmt.Sprintf("version %s not found for %s", shortSHA(commitSHA), label))
	}
	_, body := parseFrontMatter(content)

	relPath := s.blockPath(userID, label)
	full := filepath.Join(s.userDir(userID), relPath)
	existingFM, _ := parseFrontMatter(readFileOrEmpty(full))
	existingFM.UpdatedAt = nowISO()
	if existingFM.Block == "" {
		existingFM.Block = label
	}
	rendered, err := formatFrontMatter(existingFM, body)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "render front matter", err)
	}
	if err := os.WriteFile(full, []byte(rendered), 0o644); err != nil {
		return "", apperr.Wrap(apperr.Internal, "write restored block", err)
	}
	if err := repo.Add(relPath); err != nil {
		return "", apperr.Wrap(apperr.Internal, "stage restored block", err)
	}
	message := fmt.Sprintf("Restore %s to version %s", label, shortSHA(commitSHA))
	res, err := repo.Commit(formatHumanCommit(message, author))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "commit restore", err)
	}
	return res.SHA, nil
}

// DeleteBlock removes a block and commits the removal. Returns
// ("", nil) when the block was not present.
func (s *Store) DeleteBlock(userID, label, author string) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo := s.repo(userID)
	if err := ensureOnMain(repo); err != nil {
		return "", err
	}
	relPath := s.blockPath(userID, label)
	full := filepath.Join(s.userDir(userID), relPath)
	if _, err := os.Stat(full); os.IsNotExist(err) {
		return "", nil
	}
	if err := repo.Remove(relPath); err != nil {
		return "", apperr.Wrap(apperr.Internal, "remove block file", err)
	}
	message := fmt.Sprintf("Delete %s block", label)
	res, err := repo.Commit(formatHumanCommit(message, author))
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "commit delete", err)
	}
	return res.SHA, nil
}

func ensureOnMain(repo *gitrepo.Repo) error {
	branch, err := repo.CurrentBranch()
	if err != nil {
		return apperr.Wrap(apperr.Internal, "read current branch", err)
	}
	if branch == "main" {
		return nil
	}
	if err := repo.Checkout("main"); err != nil {
		return apperr.Wrap(apperr.Internal, "switch to main", err)
	}
	return nil
}

func readFileOrEmpty(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(raw)
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
