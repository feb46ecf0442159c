package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

type blockSummary struct {
	Label         string `json:"label"`
	Title         string `json:"title"`
	UpdatedAt     string `json:"updated_at"`
	PendingDiffs  int    `json:"pending_diffs"`
}

// handleListBlocks implements GET /users/{uid}/blocks (spec §6), annotating
// each block with its pending-diff count from the separate pendingdiff
// index (spec §4.2).
func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]

	labels, err := s.blocks.ListBlocks(uid)
	if err != nil {
		respondError(w, err)
		return
	}
	counts, err := s.diffs.CountPending(uid)
	if err != nil {
		respondError(w, err)
		return
	}

	summaries := make([]blockSummary, 0, len(labels))
	for _, label := range labels {
		block, err := s.blocks.ReadBlock(uid, label)
		if err != nil {
			respondError(w, err)
			return
		}
		summaries = append(summaries, blockSummary{
			Label:        block.Label,
			Title:        block.Title,
			UpdatedAt:    block.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
			PendingDiffs: counts[label],
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{"blocks": summaries})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	block, err := s.blocks.ReadBlock(vars["uid"], vars["label"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, block)
}

type putBlockRequest struct {
	Body      string `json:"body"`
	Title     string `json:"title,omitempty"`
	SchemaRef string `json:"schema_ref,omitempty"`
	Message   string `json:"message,omitempty"`
}

// handlePutBlock implements PUT /users/{uid}/blocks/{label}, the direct
// user edit path — unlike propose_memory_edit, this writes main directly
// with no review step, matching spec §4.1's WriteBlock contract.
func (s *Server) handlePutBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req putBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sha, err := s.blocks.WriteBlock(vars["uid"], vars["label"], req.Body, req.Message, "user", req.SchemaRef, req.Title)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"commit_sha": sha})
}

func (s *Server) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sha, err := s.blocks.DeleteBlock(vars["uid"], vars["label"], "user")
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted":    sha != "",
		"commit_sha": sha,
	})
}

func (s *Server) handleBlockHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	versions, err := s.blocks.GetBlockHistory(vars["uid"], vars["label"], limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleBlockVersion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	body, err := s.blocks.GetBlockAtVersion(vars["uid"], vars["label"], vars["sha"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"body": body, "commit_sha": vars["sha"]})
}

type restoreBlockRequest struct {
	CommitSHA string `json:"commit_sha"`
}

func (s *Server) handleRestoreBlock(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req restoreBlockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.CommitSHA == "" {
		respondError(w, apperr.New(apperr.InvalidInput, "commit_sha is required"))
		return
	}
	sha, err := s.blocks.RestoreBlock(vars["uid"], vars["label"], req.CommitSHA, "user")
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"commit_sha": sha})
}
