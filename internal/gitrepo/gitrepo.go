// Package gitrepo shells out to the git CLI to provide the plumbing the
// block store is built on: commits, branches, blob reads from a commit tree,
// merges, and diffs. Like the teacher's internal/git package, this never
// links a Go git implementation — every operation is a subprocess call.
package gitrepo

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Repo wraps a single git working tree.
type Repo struct {
	path string
}

// Open returns a Repo bound to an existing working tree at path. It does not
// verify the tree exists; callers that need to distinguish a missing repo
// call Exists first.
func Open(path string) *Repo {
	return &Repo{path: path}
}

// Path returns the working tree root.
func (r *Repo) Path() string { return r.path }

// run executes a git subcommand in the repo's working tree.
func (r *Repo) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.path
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// Init runs `git init` and configures a committer identity. Safe to call
// against an already-initialized tree (git init is itself idempotent).
func (r *Repo) Init(committerName, committerEmail string) error {
	if _, err := r.run("init"); err != nil {
		return err
	}
	// Pin the initial branch name regardless of the host's init.defaultBranch
	// configuration — the rest of this package assumes "main".
	if _, err := r.run("symbolic-ref", "HEAD", "refs/heads/main"); err != nil {
		return err
	}
	if _, err := r.run("config", "user.name", committerName); err != nil {
		return err
	}
	if _, err := r.run("config", "user.email", committerEmail); err != nil {
		return err
	}
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists reports whether a local branch with the given name exists.
func (r *Repo) BranchExists(name string) (bool, error) {
	_, err := r.run("rev-parse", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		return false, nil
	}
	return true, nil
}

// ListBranches returns local branch names matching a glob-free prefix
// (e.g. "agent/alice/").
func (r *Repo) ListBranches(prefix string) ([]string, error) {
	out, err := r.run("for-each-ref", "--format=%(refname:short)", "refs/heads/")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var matched []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, prefix) {
			matched = append(matched, line)
		}
	}
	return matched, nil
}

// CreateBranch creates a new branch from the given start point (commonly
// "main") without checking it out.
func (r *Repo) CreateBranch(name, startPoint string) error {
	_, err := r.run("branch", name, startPoint)
	return err
}

// Checkout switches the working tree to an existing branch.
func (r *Repo) Checkout(name string) error {
	_, err := r.run("checkout", name)
	return err
}

// CheckoutNewBranch creates and switches to a new branch in one step.
func (r *Repo) CheckoutNewBranch(name string) error {
	_, err := r.run("checkout", "-b", name)
	return err
}

// Add stages the given paths, relative to the working tree root.
func (r *Repo) Add(paths ...string) error {
	args := append([]string{"add"}, paths...)
	_, err := r.run(args...)
	return err
}

// CommitResult carries the identity of a newly-created commit.
type CommitResult struct {
	SHA     string
	Skipped bool // true when there was nothing to commit
}

// Commit creates a commit with the given message. If there is nothing
// staged, it returns Skipped=true rather than an error (empty commits are
// skipped, per spec §4.1).
func (r *Repo) Commit(message string) (CommitResult, error) {
	status, err := r.run("status", "--porcelain")
	if err != nil {
		return CommitResult{}, err
	}
	if status == "" {
		sha, _ := r.run("rev-parse", "HEAD")
		return CommitResult{SHA: sha, Skipped: true}, nil
	}
	if _, err := r.run("commit", "-m", message); err != nil {
		return CommitResult{}, err
	}
	sha, err := r.run("rev-parse", "HEAD")
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{SHA: sha}, nil
}

// ReadBlob reads a file's content as recorded in a given commit's tree,
// never touching the working directory. Returns ok=false if the path does
// not exist in that tree.
func (r *Repo) ReadBlob(commitish, relPath string) (content string, ok bool, err error) {
	out, rerr := r.run("show", fmt.Sprintf("%s:%s", commitish, relPath))
	if rerr != nil {
		return "", false, nil
	}
	return out, true, nil
}

// ListTree lists the entry names directly inside dirPath as recorded in a
// commit's tree, never touching the working directory. Returns a nil slice
// if dirPath does not exist in that tree (including when the repo itself
// has not been initialized yet).
func (r *Repo) ListTree(commitish, dirPath string) ([]string, error) {
	out, err := r.run("ls-tree", "--name-only", fmt.Sprintf("%s:%s", commitish, dirPath))
	if err != nil {
		return nil, nil
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// CommitLogEntry is one line of `git log` metadata for a path.
type CommitLogEntry struct {
	SHA       string
	Message   string // full message, possibly multi-line
	Timestamp string // ISO-8601 commit date
}

// Log returns up to limit commits touching relPath on the given branch,
// newest first.
func (r *Repo) Log(branch, relPath string, limit int) ([]CommitLogEntry, error) {
	const sep = "\x1f"
	const recSep = "\x1e"
	format := "%H" + sep + "%cI" + sep + "%B" + recSep
	args := []string{"log", fmt.Sprintf("-n%d", limit), "--format=" + format, branch, "--", relPath}
	out, err := r.run(args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var entries []CommitLogEntry
	for _, rec := range strings.Split(out, recSep) {
		rec = strings.Trim(rec, "\n")
		if rec == "" {
			continue
		}
		parts := strings.SplitN(rec, sep, 3)
		if len(parts) != 3 {
			continue
		}
		entries = append(entries, CommitLogEntry{
			SHA:       parts[0],
			Timestamp: parts[1],
			Message:   strings.TrimRight(parts[2], "\n"),
		})
	}
	return entries, nil
}

// Diff returns the textual diff of relPath between two commit-ish refs.
func (r *Repo) Diff(fromRef, toRef, relPath string) (string, error) {
	out, err := r.run("diff", fromRef, toRef, "--", relPath)
	if err != nil {
		return "", err
	}
	return out, nil
}

// MergeResult describes the outcome of merging a branch into the current one.
type MergeResult struct {
	SHA       string
	Conflict  bool
}

// MergeNoFF merges branch into the currently checked-out branch with a merge
// commit (never fast-forward-only, so a merge commit always exists to anchor
// history even when a fast-forward would have sufficed). On conflict, the
// merge is aborted and Conflict=true is returned rather than leaving the
// tree in a conflicted state.
func (r *Repo) MergeNoFF(branch, message string) (MergeResult, error) {
	_, err := r.run("merge", "--no-ff", "-m", message, branch)
	if err != nil {
		_, _ = r.run("merge", "--abort")
		return MergeResult{Conflict: true}, nil
	}
	sha, err := r.run("rev-parse", "HEAD")
	if err != nil {
		return MergeResult{}, err
	}
	return MergeResult{SHA: sha}, nil
}

// DeleteBranch deletes a local branch. If force is false, git refuses to
// delete a branch with unmerged commits.
func (r *Repo) DeleteBranch(name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.run("branch", flag, name)
	return err
}

// Remove deletes a path from the working tree and stages the removal.
func (r *Repo) Remove(relPath string) error {
	_, err := r.run("rm", "-f", "--", relPath)
	return err
}

// HasUncommittedChanges reports whether the working tree has pending changes.
func (r *Repo) HasUncommittedChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}
