package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutord/tutor-runtime/internal/llm"
)

type fakeBlockReader struct{}

func (fakeBlockReader) ListBlocks(userID string) ([]string, error) { return nil, nil }
func (fakeBlockReader) ReadBlock(userID, label string) (string, string, error) {
	return "", "", nil
}

type fakeRunPersistence struct {
	mu       sync.Mutex
	runs     []*TaskRun
	cooldown map[string]string
}

func newFakeRunPersistence() *fakeRunPersistence {
	return &fakeRunPersistence{cooldown: make(map[string]string)}
}

func (f *fakeRunPersistence) SaveRun(run *TaskRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRunPersistence) RecordRun(userID, taskName string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldown[userID+"/"+taskName] = ts.String()
	return nil
}

type execProvider struct {
	responses []func(h llm.StreamHandler)
	mu        sync.Mutex
	calls     int
}

func (p *execProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()
	if idx < len(p.responses) {
		p.responses[idx](h)
	}
	return nil
}

type errProvider struct{}

func (errProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return fmt.Errorf("provider unavailable")
}

type fakeToolExecutor struct{}

func (fakeToolExecutor) Schemas(names []string) []llm.ToolSchema { return nil }
func (fakeToolExecutor) Execute(ctx context.Context, userID, name string, args json.RawMessage) (string, error) {
	return "ok", nil
}

func TestExecuteTask_AllUsersSucceedRollsUpToSuccess(t *testing.T) {
	provider := &execProvider{responses: []func(llm.StreamHandler){
		func(h llm.StreamHandler) {},
		func(h llm.StreamHandler) {},
	}}
	runs := newFakeRunPersistence()
	exec := NewExecutor(provider, fakeToolExecutor{}, fakeBlockReader{}, runs, "claude-test", 0)

	task := &BackgroundTask{Name: "digest", UserIDs: []string{"alice", "bob"}, BatchSize: 2, MaxTurns: 1}
	run, err := exec.ExecuteTask(context.Background(), task, DispatchCron, nil)

	require.NoError(t, err)
	require.Equal(t, RunStatusSuccess, run.Status)
	require.Len(t, run.UserResults, 2)
}

func TestExecuteTask_FailedUserStillRecordsCooldown(t *testing.T) {
	runs := newFakeRunPersistence()
	exec := NewExecutor(errProvider{}, fakeToolExecutor{}, fakeBlockReader{}, runs, "claude-test", 0)

	task := &BackgroundTask{Name: "digest", UserIDs: []string{"alice"}, BatchSize: 1, MaxTurns: 1}
	run, err := exec.ExecuteTask(context.Background(), task, DispatchCron, nil)

	require.NoError(t, err)
	require.Equal(t, RunStatusFailed, run.Status)
	require.Contains(t, runs.cooldown, "alice/digest")
}

func TestRollUpStatus_MixedResultsIsPartial(t *testing.T) {
	status := rollUpStatus([]UserRunResult{
		{UserID: "alice", Status: UserResultSuccess},
		{UserID: "bob", Status: UserResultFailed},
	})
	require.Equal(t, RunStatusPartial, status)
}

func TestRollUpStatus_AllFailedIsFailed(t *testing.T) {
	status := rollUpStatus([]UserRunResult{
		{UserID: "alice", Status: UserResultFailed},
	})
	require.Equal(t, RunStatusFailed, status)
}

func TestRollUpStatus_EmptyIsSuccess(t *testing.T) {
	require.Equal(t, RunStatusSuccess, rollUpStatus(nil))
}
