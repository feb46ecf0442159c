// Package pendingdiff implements the out-of-band pending-diff index
// (spec.md C2): one JSON document per diff under a user's pending_diffs/
// directory, independent of the git layer that holds the actual content.
package pendingdiff

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tutord/tutor-runtime/internal/apperr"
)

// Operation is the requested edit shape, recorded for audit but not used to
// change how the edit is applied (spec §9 Open Question: always full-body
// replace in practice).
type Operation string

const (
	OpAppend      Operation = "append"
	OpReplace     Operation = "replace"
	OpLLMDiff     Operation = "llm_diff"
	OpFullReplace Operation = "full_replace"
)

// Confidence is the agent's self-reported confidence in a proposed edit.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Status is a diff's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusSuperseded Status = "superseded"
	StatusExpired    Status = "expired"
)

// validNextStatus enforces the lattice in spec §8: pending -> terminal,
// nothing else.
var validNextStatus = map[Status]bool{
	StatusApproved:   true,
	StatusRejected:   true,
	StatusSuperseded: true,
	StatusExpired:    true,
}

// Diff is one pending-diff record.
type Diff struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	AgentID        string     `json:"agent_id"`
	BlockLabel     string     `json:"block_label"`
	Field          string     `json:"field,omitempty"`
	Operation      Operation  `json:"operation"`
	CurrentValue   string     `json:"current_value"`
	ProposedValue  string     `json:"proposed_value"`
	Reasoning      string     `json:"reasoning"`
	Confidence     Confidence `json:"confidence"`
	SourceQuery    string     `json:"source_query,omitempty"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	AppliedCommit  string     `json:"applied_commit,omitempty"`
}

// New builds a pending Diff with a fresh UUID and created_at=now.
func New(userID, agentID, blockLabel string, op Operation, currentValue, proposedValue, reasoning string, confidence Confidence) *Diff {
	return &Diff{
		ID:            uuid.NewString(),
		UserID:        userID,
		AgentID:       agentID,
		BlockLabel:    blockLabel,
		Operation:     op,
		CurrentValue:  currentValue,
		ProposedValue: proposedValue,
		Reasoning:     reasoning,
		Confidence:    confidence,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// Store is a per-user-directory JSON file store of pending diffs.
type Store struct {
	dataRoot string
	mu       sync.Mutex // serializes read-modify-write across all users; diff volume is low
}

// NewStore creates a pendingdiff Store rooted at dataRoot (expects
// dataRoot/users/{id}/pending_diffs/{id}.json).
func NewStore(dataRoot string) *Store {
	return &Store{dataRoot: dataRoot}
}

func (s *Store) dir(userID string) string {
	return filepath.Join(s.dataRoot, "users", userID, "pending_diffs")
}

func (s *Store) path(userID, id string) string {
	return filepath.Join(s.dir(userID), id+".json")
}

// Save writes (or overwrites) a diff's JSON file.
func (s *Store) Save(diff *Diff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(diff)
}

func (s *Store) saveLocked(diff *Diff) error {
	if err := os.MkdirAll(s.dir(diff.UserID), 0o755); err != nil {
		return apperr.Wrap(apperr.Internal, "create pending_diffs directory", err)
	}
	encoded, err := json.MarshalIndent(diff, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Internal, "encode diff", err)
	}
	if err := os.WriteFile(s.path(diff.UserID, diff.ID), encoded, 0o644); err != nil {
		return apperr.Wrap(apperr.Internal, "write diff file", err)
	}
	return nil
}

// Get loads a diff by id. Returns apperr.DiffNotFound if absent.
func (s *Store) Get(userID, id string) (*Diff, error) {
	raw, err := os.ReadFile(s.path(userID, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.DiffNotFound, fmt.Sprintf("diff %q not found", id))
		}
		return nil, apperr.Wrap(apperr.Internal, "read diff file", err)
	}
	var diff Diff
	if err := json.Unmarshal(raw, &diff); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "parse diff file", err)
	}
	return &diff, nil
}

// ListPending returns pending diffs for a user, optionally filtered by
// block label, sorted newest-first by created_at. Files that fail to parse
// are skipped rather than failing the whole listing.
func (s *Store) ListPending(userID string, blockLabel string) ([]*Diff, error) {
	entries, err := os.ReadDir(s.dir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "list pending_diffs directory", err)
	}
	var diffs []*Diff
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir(userID), e.Name()))
		if err != nil {
			continue
		}
		var diff Diff
		if err := json.Unmarshal(raw, &diff); err != nil {
			continue
		}
		if diff.Status != StatusPending {
			continue
		}
		if blockLabel != "" && diff.BlockLabel != blockLabel {
			continue
		}
		diffs = append(diffs, &diff)
	}
	sort.Slice(diffs, func(i, j int) bool {
		return diffs[i].CreatedAt.After(diffs[j].CreatedAt)
	})
	return diffs, nil
}

// CountPending returns, for a user, the count of pending diffs per block
// label.
func (s *Store) CountPending(userID string) (map[string]int, error) {
	diffs, err := s.ListPending(userID, "")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, d := range diffs {
		counts[d.BlockLabel]++
	}
	return counts, nil
}

// UpdateStatus transitions a diff to a new terminal status, stamping
// reviewed_at. Returns apperr.ProposalStale if the diff is not currently
// pending, enforcing the lattice in spec §8.
func (s *Store) UpdateStatus(userID, id string, status Status, appliedCommit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	diff, err := s.Get(userID, id)
	if err != nil {
		return err
	}
	if !validNextStatus[status] {
		return apperr.New(apperr.InvalidInput, fmt.Sprintf("invalid diff status %q", status))
	}
	if diff.Status != StatusPending {
		return apperr.New(apperr.ProposalStale, fmt.Sprintf("diff %q is %s, not pending", id, diff.Status))
	}
	now := time.Now().UTC()
	diff.Status = status
	diff.ReviewedAt = &now
	if appliedCommit != "" {
		diff.AppliedCommit = appliedCommit
	}
	return s.saveLocked(diff)
}

// SupersedeOlder marks every other still-pending diff on blockLabel as
// superseded, returning the count affected. Must be called (and complete)
// before an approval's HTTP response returns, per spec §8.
func (s *Store) SupersedeOlder(userID, blockLabel, keepID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	diffs, err := s.listPendingLocked(userID, blockLabel)
	if err != nil {
		return 0, err
	}
	count := 0
	now := time.Now().UTC()
	for _, d := range diffs {
		if d.ID == keepID {
			continue
		}
		d.Status = StatusSuperseded
		d.ReviewedAt = &now
		if err := s.saveLocked(d); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Store) listPendingLocked(userID, blockLabel string) ([]*Diff, error) {
	entries, err := os.ReadDir(s.dir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "list pending_diffs directory", err)
	}
	var diffs []*Diff
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir(userID), e.Name()))
		if err != nil {
			continue
		}
		var diff Diff
		if err := json.Unmarshal(raw, &diff); err != nil {
			continue
		}
		if diff.Status != StatusPending || diff.BlockLabel != blockLabel {
			continue
		}
		diffs = append(diffs, &diff)
	}
	return diffs, nil
}
