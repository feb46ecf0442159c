package blockstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

// branchName derives the deterministic proposal branch name for a
// (user, block) pair, per spec §3.
func branchName(userID, label string) string {
	return fmt.Sprintf("agent/%s/%s", userID, label)
}

// CreateProposal implements spec §4.1's create_proposal: check out (or
// create) the proposal branch, apply the body-only edit, commit the
// metadata envelope as the commit message, and switch back to main before
// returning — regardless of outcome.
func (s *Store) CreateProposal(userID, label, newBody, agentID, reasoning, confidence string) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo := s.repo(userID)
	defer func() { _ = ensureOnMain(repo) }()

	if err := ensureOnMain(repo); err != nil {
		return "", err
	}

	branch := branchName(userID, label)
	exists, err := repo.BranchExists(branch)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "check proposal branch", err)
	}
	if exists {
		if err := repo.Checkout(branch); err != nil {
			return "", apperr.Wrap(apperr.Internal, "checkout proposal branch", err)
		}
	} else {
		if err := repo.CreateBranch(branch, "main"); err != nil {
			return "", apperr.Wrap(apperr.Internal, "create proposal branch", err)
		}
		if err := repo.Checkout(branch); err != nil {
			return "", apperr.Wrap(apperr.Internal, "checkout new proposal branch", err)
		}
	}

	relPath := s.blockPath(userID, label)
	full := filepath.Join(s.userDir(userID), relPath)
	existingFM, _ := parseFrontMatter(readFileOrEmpty(full))
	existingFM.UpdatedAt = nowISO()
	if existingFM.Block == "" {
		existingFM.Block = label
	}
	rendered, err := formatFrontMatter(existingFM, newBody)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "render proposal front matter", err)
	}
	if err := os.WriteFile(full, []byte(rendered), 0o644); err != nil {
		return "", apperr.Wrap(apperr.Internal, "write proposal body", err)
	}
	if err := repo.Add(relPath); err != nil {
		return "", apperr.Wrap(apperr.Internal, "stage proposal body", err)
	}

	envelope, err := formatEnvelope(metadataEnvelope{
		AgentID:    agentID,
		Reasoning:  reasoning,
		Confidence: confidence,
		BlockLabel: label,
		UserID:     userID,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, "encode metadata envelope", err)
	}
	if _, err := repo.Commit(envelope); err != nil {
		return "", apperr.Wrap(apperr.Internal, "commit proposal", err)
	}

	return branch, nil
}

// ListProposals enumerates live proposal branches for a user.
func (s *Store) ListProposals(userID string) ([]Proposal, error) {
	repo := s.repo(userID)
	prefix := fmt.Sprintf("agent/%s/", userID)
	branches, err := repo.ListBranches(prefix)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "list proposal branches", err)
	}
	proposals := make([]Proposal, 0, len(branches))
	for _, branch := range branches {
		label := strings.TrimPrefix(branch, prefix)
		entries, err := repo.Log(branch, s.blockPath(userID, label), 1)
		if err != nil || len(entries) == 0 {
			continue
		}
		env := parseEnvelope(entries[0].Message)
		proposals = append(proposals, Proposal{
			Branch:     branch,
			BlockLabel: label,
			AgentID:    env.AgentID,
			Reasoning:  env.Reasoning,
			Confidence: env.Confidence,
			CreatedAt:  parseISO(entries[0].Timestamp),
		})
	}
	return proposals, nil
}

// GetProposalDiff computes the diff of a block between main and its
// proposal branch, combined with the tip commit's metadata. Returns
// apperr.DiffNotFound if no proposal branch exists for the block.
func (s *Store) GetProposalDiff(userID, label string) (*ProposalDiff, error) {
	repo := s.repo(userID)
	branch := branchName(userID, label)
	exists, err := repo.BranchExists(branch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "check proposal branch", err)
	}
	if !exists {
		return nil, apperr.New(apperr.DiffNotFound, fmt.Sprintf("no active proposal for block %q", label))
	}

	relPath := s.blockPath(userID, label)
	entries, err := repo.Log(branch, relPath, 1)
	if err != nil || len(entries) == 0 {
		return nil, apperr.New(apperr.DiffNotFound, fmt.Sprintf("no active proposal for block %q", label))
	}
	env := parseEnvelope(entries[0].Message)

	currentContent, _, err := repo.ReadBlob("main", relPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read current body", err)
	}
	_, currentBody := parseFrontMatter(currentContent)

	proposedContent, _, err := repo.ReadBlob(branch, relPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "read proposed body", err)
	}
	_, proposedBody := parseFrontMatter(proposedContent)

	return &ProposalDiff{
		CurrentBody:  currentBody,
		ProposedBody: proposedBody,
		AgentID:      env.AgentID,
		Reasoning:    env.Reasoning,
		Confidence:   env.Confidence,
		CreatedAt:    parseISO(entries[0].Timestamp),
	}, nil
}

// ApproveResult carries the outcome of approving a proposal.
type ApproveResult struct {
	MergeCommitSHA string
}

// ApproveProposal merges the proposal branch into main, deletes it, and
// returns the merge commit SHA. Callers are responsible for updating the
// pending-diff index (C2) — this method only touches the git layer.
func (s *Store) ApproveProposal(userID, label string) (*ApproveResult, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo := s.repo(userID)
	branch := branchName(userID, label)
	exists, err := repo.BranchExists(branch)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "check proposal branch", err)
	}
	if !exists {
		return nil, apperr.New(apperr.DiffNotFound, fmt.Sprintf("no active proposal for block %q", label))
	}

	relPath := s.blockPath(userID, label)
	entries, err := repo.Log(branch, relPath, 1)
	reasoning := ""
	if err == nil && len(entries) > 0 {
		env := parseEnvelope(entries[0].Message)
		reasoning = env.Reasoning
	}
	if len(reasoning) > 50 {
		reasoning = reasoning[:50]
	}

	if err := ensureOnMain(repo); err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Approve agent proposal: %s", reasoning)
	result, err := repo.MergeNoFF(branch, message)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "merge proposal branch", err)
	}
	if result.Conflict {
		return nil, apperr.New(apperr.ProposalConflict, fmt.Sprintf("merging proposal for %q conflicts with current main", label))
	}

	if err := repo.DeleteBranch(branch, false); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "delete merged proposal branch", err)
	}

	return &ApproveResult{MergeCommitSHA: result.SHA}, nil
}

// RejectProposal force-deletes the proposal branch if present, returning
// whether it existed.
func (s *Store) RejectProposal(userID, label string) (bool, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo := s.repo(userID)
	branch := branchName(userID, label)
	exists, err := repo.BranchExists(branch)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, "check proposal branch", err)
	}
	if !exists {
		return false, nil
	}
	if err := ensureOnMain(repo); err != nil {
		return false, err
	}
	if err := repo.DeleteBranch(branch, true); err != nil {
		return false, apperr.Wrap(apperr.Internal, "delete rejected proposal branch", err)
	}
	return true, nil
}
