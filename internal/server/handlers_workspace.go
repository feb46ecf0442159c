package server

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
)

// handleListWorkspaceFiles implements GET /users/{uid}/workspace/files
// (spec §4.4/§6), returning the indexed file listing and its total size.
func (s *Server) handleListWorkspaceFiles(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	files, total, err := s.workspace.ListFiles(uid)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"files":      files,
		"total_size": total,
	})
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	data, err := s.workspace.ReadFile(vars["uid"], vars["path"])
	if err != nil {
		respondError(w, err)
		return
	}
	contentType := mime.TypeByExtension(filepath.Ext(vars["path"]))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleUploadFile implements PUT .../workspace/files/{path}, writing the
// raw request body (spec §4.4's WriteFile, source "user").
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, err)
		return
	}
	info, err := s.workspace.WriteFile(vars["uid"], vars["path"], data, "user")
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.workspace.DeleteFile(vars["uid"], vars["path"]); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}
