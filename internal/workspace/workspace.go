// Package workspace implements the per-user sandboxed filesystem the
// conversational agent reads and writes through its file tools (spec.md
// C4), plus the on-disk sync-state index and CLAUDE.md passthrough.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

const (
	workspaceDirName = "workspace"
	syncIndexName    = ".sync_state.json"
	claudeFileName   = "CLAUDE.md"

	// MaxFileSize is the hard cap enforced on write (spec §4.4).
	MaxFileSize = 10 * 1024 * 1024
)

// FileInfo is one entry of the workspace index, and the shape returned by
// the listing endpoint.
type FileInfo struct {
	Path            string     `json:"path"`
	Hash            string     `json:"hash"`
	Size            int64      `json:"size"`
	Modified        time.Time  `json:"modified"`
	Source          string     `json:"source,omitempty"`
	OpenWebUIFileID string     `json:"openwebui_file_id,omitempty"`
	SyncedAt        *time.Time `json:"synced_at,omitempty"`
}

// Store resolves and mediates every filesystem access a user's workspace
// sees. When sharedRoot is non-empty, every user is mapped to the same
// on-disk tree (spec §6 "workspace_shared?").
type Store struct {
	dataRoot   string
	sharedRoot string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a per-user workspace Store rooted at dataRoot (expects
// dataRoot/users/{id}/workspace/...).
func New(dataRoot string) *Store {
	return &Store{dataRoot: dataRoot, locks: make(map[string]*sync.Mutex)}
}

// NewShared creates a Store where every user shares the single workspace
// tree at sharedRoot.
func NewShared(dataRoot, sharedRoot string) *Store {
	return &Store{dataRoot: dataRoot, sharedRoot: sharedRoot, locks: make(map[string]*sync.Mutex)}
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

// Root returns the workspace root directory for userID.
func (s *Store) Root(userID string) string {
	if s.sharedRoot != "" {
		return s.sharedRoot
	}
	return filepath.Join(s.dataRoot, "users", userID, workspaceDirName)
}

func (s *Store) indexPath(userID string) string {
	if s.sharedRoot != "" {
		return filepath.Join(s.sharedRoot, syncIndexName)
	}
	return filepath.Join(s.dataRoot, "users", userID, syncIndexName)
}

// resolve validates relPath against root, rejecting any path whose
// resolved absolute form escapes it. relPath="" resolves to root itself.
func resolve(root, relPath string) (string, error) {
	cleanRoot := filepath.Clean(root)
	abs := filepath.Join(cleanRoot, strings.TrimPrefix(relPath, "/"))

	rootWithSep := cleanRoot + string(filepath.Separator)
	if abs != cleanRoot && !strings.HasPrefix(abs, rootWithSep) {
		return "", apperr.New(apperr.InvalidPath, fmt.Sprintf("path %q escapes workspace root", relPath))
	}
	return abs, nil
}

// ReadFile returns the contents of relPath within userID's workspace.
func (s *Store) ReadFile(userID, relPath string) ([]byte, error) {
	abs, err := resolve(s.Root(userID), relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.BlockNotFound, fmt.Sprintf("file %q not found", relPath))
		}
		return nil, apperr.Wrap(apperr.Internal, "read workspace file", err)
	}
	return data, nil
}

// WriteFile writes data to relPath, enforcing the size cap, and updates the
// sync index under the user's lock.
func (s *Store) WriteFile(userID, relPath string, data []byte, source string) (*FileInfo, error) {
	if len(data) > MaxFileSize {
		return nil, apperr.New(apperr.FileTooLarge, fmt.Sprintf("file %q exceeds %d bytes", relPath, MaxFileSize))
	}
	abs, err := resolve(s.Root(userID), relPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "create workspace directory", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "write workspace file", err)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "stat workspace file", err)
	}
	now := time.Now().UTC()
	entry := &FileInfo{
		Path:     filepath.ToSlash(strings.TrimPrefix(relPath, "/")),
		Hash:     hashBytes(data),
		Size:     info.Size(),
		Modified: info.ModTime().UTC(),
		Source:   source,
		SyncedAt: &now,
	}
	idx, err := s.loadIndex(userID)
	if err != nil {
		return nil, err
	}
	idx[entry.Path] = entry
	if err := s.saveIndex(userID, idx); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteFile removes relPath and its index entry.
func (s *Store) DeleteFile(userID, relPath string) error {
	abs, err := resolve(s.Root(userID), relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return apperr.New(apperr.BlockNotFound, fmt.Sprintf("file %q not found", relPath))
		}
		return apperr.Wrap(apperr.Internal, "delete workspace file", err)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	idx, err := s.loadIndex(userID)
	if err != nil {
		return err
	}
	delete(idx, filepath.ToSlash(strings.TrimPrefix(relPath, "/")))
	return s.saveIndex(userID, idx)
}

// ListFiles walks the workspace, reusing indexed hashes where the file's
// size and mtime still match, and returns entries sorted by path plus the
// total size in bytes.
func (s *Store) ListFiles(userID string) ([]*FileInfo, int64, error) {
	root := s.Root(userID)

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	idx, err := s.loadIndex(userID)
	if err != nil {
		return nil, 0, err
	}

	var files []*FileInfo
	var total int64
	dirty := false

	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel := filepath.ToSlash(strings.TrimPrefix(strings.TrimPrefix(path, root), string(filepath.Separator)))
		if rel == syncIndexName {
			return nil
		}

		existing, ok := idx[rel]
		var hash string
		if ok && existing.Size == info.Size() && existing.Modified.Equal(info.ModTime().UTC()) {
			hash = existing.Hash
		} else {
			data, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}
			hash = hashBytes(data)
			dirty = true
		}
		entry := &FileInfo{
			Path:     rel,
			Hash:     hash,
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		}
		if ok {
			entry.Source = existing.Source
			entry.OpenWebUIFileID = existing.OpenWebUIFileID
			entry.SyncedAt = existing.SyncedAt
		}
		idx[rel] = entry
		files = append(files, entry)
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Internal, "walk workspace", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if dirty {
		if err := s.saveIndex(userID, idx); err != nil {
			return nil, 0, err
		}
	}
	return files, total, nil
}

// ReadClaudeMD returns the verbatim contents of CLAUDE.md at the workspace
// root, and whether it was present.
func (s *Store) ReadClaudeMD(userID string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.Root(userID), claudeFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, apperr.Wrap(apperr.Internal, "read CLAUDE.md", err)
	}
	return string(data), true, nil
}

func (s *Store) loadIndex(userID string) (map[string]*FileInfo, error) {
	raw, err := os.ReadFile(s.indexPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*FileInfo), nil
		}
		return nil, apperr.Wrap(apperr.Internal, "read sync index", err)
	}
	idx := make(map[string]*FileInfo)
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "parse sync index", err)
	}
	return idx, nil
}

func (s *Store) saveIndex(userID string, idx map[string]*FileInfo) error {
	path := s.indexPath(userID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperr.Wrap(apperr.Internal, "create index directory", err)
	}
	encoded, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode sync index", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return apperr.Wrap(apperr.Internal, "write sync index", err)
	}
	return nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
