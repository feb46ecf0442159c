package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tutord/tutor-runtime/internal/apperr"
	"github.com/tutord/tutor-runtime/internal/tasks"
)

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"tasks": s.registry.ListAll()})
}

type upsertTaskTrigger struct {
	Kind            string `json:"kind"`
	CronExpr        string `json:"cron_expr,omitempty"`
	IdleMinutes     int    `json:"idle_minutes,omitempty"`
	CooldownMinutes int    `json:"cooldown_minutes,omitempty"`
}

type upsertTaskRequest struct {
	Name         string            `json:"name"`
	SystemPrompt string            `json:"system_prompt"`
	Tools        []string          `json:"tools"`
	MemoryBlocks []string          `json:"memory_blocks"`
	Trigger      upsertTaskTrigger `json:"trigger"`
	UserIDs      []string          `json:"user_ids"`
	BatchSize    int               `json:"batch_size"`
	MaxTurns     int               `json:"max_turns"`
	Enabled      *bool             `json:"enabled,omitempty"`
}

// handleUpsertTask implements POST /background/tasks (spec §4.7):
// registration replaces any prior definition under the same name.
func (s *Server) handleUpsertTask(w http.ResponseWriter, r *http.Request) {
	var req upsertTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Name == "" {
		respondError(w, apperr.New(apperr.InvalidInput, "name is required"))
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	task := &tasks.BackgroundTask{
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		Tools:        req.Tools,
		MemoryBlocks: req.MemoryBlocks,
		Trigger: tasks.Trigger{
			Kind:            tasks.TriggerKind(req.Trigger.Kind),
			CronExpr:        req.Trigger.CronExpr,
			IdleMinutes:     req.Trigger.IdleMinutes,
			CooldownMinutes: req.Trigger.CooldownMinutes,
		},
		UserIDs:   req.UserIDs,
		BatchSize: req.BatchSize,
		MaxTurns:  req.MaxTurns,
		Enabled:   enabled,
	}

	if err := s.registry.Register(task); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

// handleRunTaskNow implements POST /background/tasks/{name}/run: a
// synchronous manual trigger returning the completed run summary.
func (s *Server) handleRunTaskNow(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	runID, err := s.scheduler.RunTaskNow(r.Context(), name)
	if err != nil {
		respondError(w, err)
		return
	}
	run, err := s.taskStore.GetRun(runID)
	if err != nil {
		respondError(w, err)
		return
	}
	s.hub.BroadcastTaskRun(run)
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	runs, err := s.taskStore.ListRunsForTask(name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	run, err := s.taskStore.GetRun(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}
