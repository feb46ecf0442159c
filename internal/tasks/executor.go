package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tutord/tutor-runtime/internal/llm"
	"github.com/tutord/tutor-runtime/internal/memorycontext"
)

// driverPrompt is the fixed user-turn message that kicks off a background
// task's run, identical for every dispatch (spec §4.9).
const driverPrompt = "Execute your background task now. Review the student context and take appropriate action."

// llmCallTimeout bounds a single provider round-trip so a hung connection
// cannot stall a background run indefinitely.
const llmCallTimeout = 120 * time.Second

// RunPersistence is the narrow durability boundary Executor needs for
// TaskRun snapshots and the cooldown ledger; satisfied by *taskstore.Store.
type RunPersistence interface {
	SaveRun(run *TaskRun) error
	RecordRun(userID, taskName string, ts time.Time) error
}

// ToolExecutor dispatches one tool call for a given user, restricted to the
// caller-supplied allow-list of tool names; satisfied by
// *agentrunner.TaskToolExecutor.
type ToolExecutor interface {
	Schemas(names []string) []llm.ToolSchema
	Execute(ctx context.Context, userID, name string, args json.RawMessage) (string, error)
}

// Executor runs a BackgroundTask across its user cohort (spec §4.9).
type Executor struct {
	provider     llm.Provider
	tools        ToolExecutor
	blocks       memorycontext.BlockReader
	runs         RunPersistence
	model        string
	maxToolRound int
}

// NewExecutor builds an Executor. maxToolRound bounds how many provider
// round-trips one user's run makes within its task.max_turns budget; 0
// defaults to 8, mirroring the agent runner's own bound.
func NewExecutor(provider llm.Provider, tools ToolExecutor, blocks memorycontext.BlockReader, runs RunPersistence, model string, maxToolRound int) *Executor {
	if maxToolRound <= 0 {
		maxToolRound = 8
	}
	return &Executor{provider: provider, tools: tools, blocks: blocks, runs: runs, model: model, maxToolRound: maxToolRound}
}

// ExecuteTask runs task for userIDs (or task.UserIDs when nil), in batches
// of task.BatchSize, persisting a TaskRun snapshot after each batch.
func (e *Executor) ExecuteTask(ctx context.Context, task *BackgroundTask, dispatch DispatchType, userIDs []string) (*TaskRun, error) {
	users := userIDs
	if users == nil {
		users = task.UserIDs
	}

	run := &TaskRun{
		ID:        newRunID(),
		TaskName:  task.Name,
		Status:    RunStatusRunning,
		Dispatch:  dispatch,
		StartedAt: time.Now().UTC(),
	}
	if err := e.runs.SaveRun(run); err != nil {
		log.Printf("[tasks] persist initial run for %s failed: %v", task.Name, err)
	}

	batchSize := task.BatchSize
	if batchSize <= 0 {
		batchSize = len(users)
		if batchSize == 0 {
			batchSize = 1
		}
	}

	for i := 0; i < len(users); i += batchSize {
		end := i + batchSize
		if end > len(users) {
			end = len(users)
		}
		batch := users[i:end]

		results, err := e.processBatch(ctx, task, batch)
		if err != nil {
			completed := time.Now().UTC()
			run.Status = RunStatusFailed
			run.CompletedAt = &completed
			if saveErr := e.runs.SaveRun(run); saveErr != nil {
				log.Printf("[tasks] persist failed run for %s: %v", task.Name, saveErr)
			}
			return run, err
		}
		run.UserResults = append(run.UserResults, results...)

		if err := e.runs.SaveRun(run); err != nil {
			log.Printf("[tasks] persist run progress for %s failed: %v", task.Name, err)
		}
	}

	run.Status = rollUpStatus(run.UserResults)
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	if err := e.runs.SaveRun(run); err != nil {
		log.Printf("[tasks] persist final run for %s failed: %v", task.Name, err)
	}

	return run, nil
}

func rollUpStatus(results []UserRunResult) RunStatus {
	if len(results) == 0 {
		return RunStatusSuccess
	}
	allSuccess, allFailed := true, true
	for _, r := range results {
		if r.Status != UserResultSuccess {
			allSuccess = false
		}
		if r.Status != UserResultFailed {
			allFailed = false
		}
	}
	switch {
	case allSuccess:
		return RunStatusSuccess
	case allFailed:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// processBatch runs task concurrently for every user in batch, using
// errgroup in place of the original's asyncio.gather fan-out.
func (e *Executor) processBatch(ctx context.Context, task *BackgroundTask, batch []string) ([]UserRunResult, error) {
	results := make([]UserRunResult, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, userID := range batch {
		i, userID := i, userID
		g.Go(func() error {
			results[i] = e.runForUser(gctx, task, userID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Executor) runForUser(ctx context.Context, task *BackgroundTask, userID string) UserRunResult {
	// Cooldown ledger records every run, success or failure, so a
	// persistently failing task is not redispatched on every idle check.
	defer func() {
		if err := e.runs.RecordRun(userID, task.Name, time.Now().UTC()); err != nil {
			log.Printf("[tasks] record cooldown ledger for %s/%s failed: %v", task.Name, userID, err)
		}
	}()

	memoryContext, err := memorycontext.BuildMemoryContext(e.blocks, userID, task.MemoryBlocks)
	if err != nil {
		log.Printf("[tasks] build memory context for %s/%s failed: %v", task.Name, userID, err)
	}

	instructions := task.SystemPrompt
	if memoryContext != "" {
		instructions += "\n\n---\n\n# Student Context\n\n" + memoryContext
	}

	messages := []llm.Message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: driverPrompt},
	}
	tools := e.tools.Schemas(task.Tools)

	turnsUsed := 0
	maxTurns := task.MaxTurns
	if maxTurns <= 0 {
		maxTurns = e.maxToolRound
	}

	for round := 0; round < e.maxToolRound && turnsUsed < maxTurns; round++ {
		collector := &taskCollector{}
		callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
		err := e.provider.ChatStream(callCtx, messages, tools, e.model, collector)
		cancel()
		if err != nil {
			return failedResult(userID, err)
		}
		turnsUsed++

		if len(collector.toolCalls) == 0 {
			break
		}

		messages = append(messages, llm.Message{Role: "assistant", ToolCalls: collector.toolCalls})
		for _, tc := range collector.toolCalls {
			result, toolErr := e.tools.Execute(ctx, userID, tc.Name, tc.Args)
			if toolErr != nil {
				result = fmt.Sprintf("Error: %v", toolErr)
			}
			messages = append(messages, llm.Message{Role: "tool", ToolID: tc.ID, Content: result})
		}
	}

	return UserRunResult{UserID: userID, Status: UserResultSuccess, CompletedAt: time.Now().UTC()}
}

func failedResult(userID string, err error) UserRunResult {
	return UserRunResult{UserID: userID, Status: UserResultFailed, Error: err.Error(), CompletedAt: time.Now().UTC()}
}

// taskCollector implements llm.StreamHandler, discarding reasoning/text
// deltas (background tasks have no reader to stream to) while tracking
// the round's tool calls.
type taskCollector struct {
	toolCalls []llm.ToolCall
}

func (c *taskCollector) OnReasoning(text string)      {}
func (c *taskCollector) OnTextDelta(text string)      {}
func (c *taskCollector) OnToolCallStarted(tc llm.ToolCall) {
	c.toolCalls = append(c.toolCalls, tc)
}
func (c *taskCollector) OnToolCallResult(tc llm.ToolCall, result string, err error) {}

func newRunID() string {
	return uuid.NewString()
}
