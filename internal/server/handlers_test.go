package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutord/tutor-runtime/internal/blockstore"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
	"github.com/tutord/tutor-runtime/internal/tasks"
	"github.com/tutord/tutor-runtime/internal/taskstore"
	"github.com/tutord/tutor-runtime/internal/workspace"
)

// fakeExecutor lets task-endpoint tests exercise the scheduler's
// RunTaskNow path without a live LLM provider.
type fakeExecutor struct {
	store *taskstore.Store
}

func (f *fakeExecutor) ExecuteTask(ctx context.Context, task *tasks.BackgroundTask, dispatch tasks.DispatchType, userIDs []string) (*tasks.TaskRun, error) {
	run := &tasks.TaskRun{
		ID:        "run-" + task.Name,
		TaskName:  task.Name,
		Status:    tasks.RunStatusSuccess,
		Dispatch:  dispatch,
		StartedAt: time.Now().UTC(),
	}
	if err := f.store.SaveRun(run); err != nil {
		return nil, err
	}
	return run, nil
}

type fakeIdleSource struct{}

func (fakeIdleSource) GetUsersIdleFor(ctx context.Context, minutes int, taskName string, cooldownMinutes int) ([]string, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	blocks := blockstore.New(dir)
	diffs := pendingdiff.NewStore(dir)
	ws := workspace.New(dir)

	taskStore, err := taskstore.Open(filepath.Join(dir, "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { taskStore.Close() })

	registry := tasks.NewRegistry(taskStore)
	scheduler := tasks.NewScheduler(registry, &fakeExecutor{store: taskStore}, fakeIdleSource{}, time.Hour)

	return New(Config{
		Blocks:    blocks,
		Diffs:     diffs,
		Workspace: ws,
		Registry:  registry,
		Scheduler: scheduler,
		TaskStore: taskStore,
	})
}

func doRequest(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestBlockLifecycle_PutGetListDelete(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.blocks.Init("alice"))

	putBody, _ := json.Marshal(putBlockRequest{Body: "The student likes math.", Title: "Student"})
	rec := doRequest(s, http.MethodPut, "/users/alice/blocks/student", putBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/users/alice/blocks/student", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var block blockstore.Block
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &block))
	require.Equal(t, "The student likes math.", block.Body)

	rec = doRequest(s, http.MethodGet, "/users/alice/blocks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed map[string][]blockSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed["blocks"], 1)
	require.Equal(t, 0, listed["blocks"][0].PendingDiffs)

	rec = doRequest(s, http.MethodDelete, "/users/alice/blocks/student", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/users/alice/blocks/student", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProposeApproveDiff_UpdatesBlockBody(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.blocks.Init("bob"))
	_, err := s.blocks.WriteBlock("bob", "student", "The student likes math.", "seed", "user", "", "")
	require.NoError(t, err)

	proposeBody, _ := json.Marshal(proposeEditRequest{
		AgentID:    "tutor",
		Body:       "The student loves mathematics.",
		Reasoning:  "Student expressed stronger enthusiasm",
		Confidence: string(pendingdiff.ConfidenceHigh),
	})
	rec := doRequest(s, http.MethodPost, "/users/bob/blocks/student/propose", proposeBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	var diff pendingdiff.Diff
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diff))
	require.Equal(t, pendingdiff.StatusPending, diff.Status)

	rec = doRequest(s, http.MethodGet, "/users/bob/blocks/student/diffs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed map[string][]*pendingdiff.Diff
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed["diffs"], 1)

	rec = doRequest(s, http.MethodPost, "/users/bob/blocks/student/diffs/"+diff.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/users/bob/blocks/student", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var block blockstore.Block
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &block))
	require.Equal(t, "The student loves mathematics.", block.Body)
}

func TestRejectDiff_LeavesBlockUnchanged(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.blocks.Init("carol"))
	_, err := s.blocks.WriteBlock("carol", "student", "original", "seed", "user", "", "")
	require.NoError(t, err)

	proposeBody, _ := json.Marshal(proposeEditRequest{AgentID: "tutor", Body: "changed", Reasoning: "r"})
	rec := doRequest(s, http.MethodPost, "/users/carol/blocks/student/propose", proposeBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var diff pendingdiff.Diff
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diff))

	rec = doRequest(s, http.MethodPost, "/users/carol/blocks/student/diffs/"+diff.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/users/carol/blocks/student", nil)
	var block blockstore.Block
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &block))
	require.Equal(t, "original", block.Body)
}

func TestWorkspaceFileLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPut, "/users/dave/workspace/files/notes.txt", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/users/dave/workspace/files/notes.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())

	rec = doRequest(s, http.MethodGet, "/users/dave/workspace/files", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.EqualValues(t, 5, listed["total_size"])

	rec = doRequest(s, http.MethodDelete, "/users/dave/workspace/files/notes.txt", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/users/dave/workspace/files/notes.txt", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskLifecycle_UpsertRunAndHistory(t *testing.T) {
	s := newTestServer(t)

	upsertBody, _ := json.Marshal(upsertTaskRequest{
		Name:         "nightly-summary",
		SystemPrompt: "Summarize today's sessions.",
		Trigger:      upsertTaskTrigger{Kind: "cron", CronExpr: "0 2 * * *"},
		UserIDs:      []string{"alice"},
		BatchSize:    5,
		MaxTurns:     3,
	})
	rec := doRequest(s, http.MethodPost, "/background/tasks", upsertBody)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/background/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed map[string][]*tasks.BackgroundTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed["tasks"], 1)

	rec = doRequest(s, http.MethodPost, "/background/tasks/nightly-summary/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run tasks.TaskRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Equal(t, tasks.RunStatusSuccess, run.Status)

	rec = doRequest(s, http.MethodGet, "/background/tasks/nightly-summary/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs map[string][]*tasks.TaskRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs["runs"], 1)

	rec = doRequest(s, http.MethodGet, "/background/runs/"+run.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
