package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tutord/tutor-runtime/internal/apperr"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
)

// handleListDiffs implements GET /users/{uid}/blocks/{label}/diffs. Diffs
// are superseded down to at most one live pending entry per block (spec
// §8), so this is always a list of zero or one elements.
func (s *Server) handleListDiffs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	diffs, err := s.diffs.ListPending(vars["uid"], vars["label"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"diffs": diffs})
}

type proposeEditRequest struct {
	AgentID    string `json:"agent_id"`
	Body       string `json:"body"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"`
}

// handleProposeEdit implements POST /users/{uid}/blocks/{label}/propose,
// the agent-facing full-body-replace proposal path (spec §6), distinct from
// the surgical-edit tool of §4.6. It writes the git-layer proposal branch
// and the pending-diff index record together, superseding any diff left
// pending from an earlier proposal on the same block.
func (s *Server) handleProposeEdit(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	uid, label := vars["uid"], vars["label"]

	var req proposeEditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.AgentID == "" || req.Reasoning == "" {
		respondError(w, apperr.New(apperr.InvalidInput, "agent_id and reasoning are required"))
		return
	}
	confidence := pendingdiff.Confidence(req.Confidence)
	if confidence == "" {
		confidence = pendingdiff.ConfidenceMedium
	}

	currentBody := ""
	if block, err := s.blocks.ReadBlock(uid, label); err == nil {
		currentBody = block.Body
	}

	if _, err := s.blocks.CreateProposal(uid, label, req.Body, req.AgentID, req.Reasoning, string(confidence)); err != nil {
		respondError(w, err)
		return
	}

	diff := pendingdiff.New(uid, req.AgentID, label, pendingdiff.OpFullReplace, currentBody, req.Body, req.Reasoning, confidence)
	if err := s.diffs.Save(diff); err != nil {
		respondError(w, err)
		return
	}
	if _, err := s.diffs.SupersedeOlder(uid, label, diff.ID); err != nil {
		respondError(w, err)
		return
	}

	s.hub.BroadcastDiffUpdate(diff)
	respondJSON(w, http.StatusCreated, diff)
}

// handleApproveDiff implements POST .../diffs/{id}/approve, merging the
// proposal branch (git layer) and transitioning the index record (spec §8).
func (s *Server) handleApproveDiff(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	uid, label, id := vars["uid"], vars["label"], vars["id"]

	diff, err := s.diffs.Get(uid, id)
	if err != nil {
		respondError(w, err)
		return
	}
	if diff.Status != pendingdiff.StatusPending {
		respondError(w, apperr.New(apperr.ProposalStale, "diff is not pending"))
		return
	}

	result, err := s.blocks.ApproveProposal(uid, label)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.diffs.UpdateStatus(uid, id, pendingdiff.StatusApproved, result.MergeCommitSHA); err != nil {
		respondError(w, err)
		return
	}
	if _, err := s.diffs.SupersedeOlder(uid, label, id); err != nil {
		respondError(w, err)
		return
	}

	diff, err = s.diffs.Get(uid, id)
	if err != nil {
		respondError(w, err)
		return
	}
	s.hub.BroadcastDiffUpdate(diff)
	respondJSON(w, http.StatusOK, map[string]any{
		"approved":   true,
		"commit_sha": result.MergeCommitSHA,
	})
}

// handleRejectDiff implements POST .../diffs/{id}/reject, deleting the
// proposal branch and marking the index record rejected.
func (s *Server) handleRejectDiff(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	uid, label, id := vars["uid"], vars["label"], vars["id"]

	diff, err := s.diffs.Get(uid, id)
	if err != nil {
		respondError(w, err)
		return
	}
	if diff.Status != pendingdiff.StatusPending {
		respondError(w, apperr.New(apperr.ProposalStale, "diff is not pending"))
		return
	}

	if _, err := s.blocks.RejectProposal(uid, label); err != nil {
		respondError(w, err)
		return
	}
	if err := s.diffs.UpdateStatus(uid, id, pendingdiff.StatusRejected, ""); err != nil {
		respondError(w, err)
		return
	}

	diff, err = s.diffs.Get(uid, id)
	if err != nil {
		respondError(w, err)
		return
	}
	s.hub.BroadcastDiffUpdate(diff)
	respondJSON(w, http.StatusOK, map[string]bool{"rejected": true})
}
