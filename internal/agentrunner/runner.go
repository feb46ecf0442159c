// Package agentrunner drives one conversational turn (spec.md C5):
// assembling instructions from memory, workspace, and per-chat system
// text, opening a streaming LLM call, mapping provider chunks onto the
// closed SSE event vocabulary, and firing the persistence and
// activity-stamp side effects.
package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tutord/tutor-runtime/internal/blockstore"
	"github.com/tutord/tutor-runtime/internal/llm"
	"github.com/tutord/tutor-runtime/internal/memorycontext"
	"github.com/tutord/tutor-runtime/internal/notifications"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
	"github.com/tutord/tutor-runtime/internal/sse"
	"github.com/tutord/tutor-runtime/internal/workspace"
)

// maxToolRounds bounds how many times a single turn re-invokes the model
// after executing tool calls, guarding against a runaway tool loop.
const maxToolRounds = 8

// llmCallTimeout bounds a single provider round-trip (spec §5 suggested
// LLM-call timeout) so a hung connection cannot block a turn indefinitely.
const llmCallTimeout = 120 * time.Second

// Config wires a Runner's dependencies.
type Config struct {
	Provider      llm.Provider
	Blocks        *blockstore.Store
	Diffs         *pendingdiff.Store
	Workspace     *workspace.Store
	Notifier      *notifications.Manager
	Conversations ConversationRecorder
	Activity      ActivityRecorder
	Dialectic     DialecticQuerier
	Artifacts     ArtifactWriter
	Model         string
}

// Runner drives turns for one configured backend.
type Runner struct {
	provider      llm.Provider
	blocks        *blockstore.Store
	diffs         *pendingdiff.Store
	workspace     *workspace.Store
	notifier      *notifications.Manager
	conversations ConversationRecorder
	activity      ActivityRecorder
	dialectic     DialecticQuerier
	artifacts     ArtifactWriter
	model         string
}

// New builds a Runner. Conversations/Dialectic/Artifacts default to no-op
// implementations when left nil.
func New(cfg Config) *Runner {
	conversations := cfg.Conversations
	if conversations == nil {
		conversations = NoopConversationRecorder{}
	}
	dialectic := cfg.Dialectic
	if dialectic == nil {
		dialectic = NoopDialecticQuerier{}
	}
	artifacts := cfg.Artifacts
	if artifacts == nil {
		artifacts = NoopArtifactWriter{}
	}
	return &Runner{
		provider:      cfg.Provider,
		blocks:        cfg.Blocks,
		diffs:         cfg.Diffs,
		workspace:     cfg.Workspace,
		notifier:      cfg.Notifier,
		conversations: conversations,
		activity:      cfg.Activity,
		dialectic:     dialectic,
		artifacts:     artifacts,
		model:         cfg.Model,
	}
}

// streamCollector implements llm.StreamHandler, forwarding classified
// chunks to emit as spec §5 SSE events and tracking the tool calls and
// accumulated text of one round.
type streamCollector struct {
	emit             func(sse.Event)
	fullResponse     *string
	toolCalls        []llm.ToolCall
	startedReasoning bool
}

func (c *streamCollector) OnReasoning(text string) {
	if !c.startedReasoning {
		c.startedReasoning = true
		c.emit(sse.Event{Type: "status", Data: map[string]any{"content": "Thinking…", "reasoning": text}})
	}
	c.emit(sse.Event{Type: "reasoning", Data: map[string]any{"content": text}})
}

func (c *streamCollector) OnToolCallStarted(tc llm.ToolCall) {
	c.toolCalls = append(c.toolCalls, tc)
	c.emit(sse.Event{Type: "tool_call", Data: map[string]any{"name": tc.Name, "status": "started"}})
}

func (c *streamCollector) OnToolCallResult(tc llm.ToolCall, result string, err error) {
	c.emit(sse.Event{Type: "tool_call", Data: map[string]any{"name": tc.Name, "status": "completed"}})
}

func (c *streamCollector) OnTextDelta(text string) {
	*c.fullResponse += text
	c.emit(sse.Event{Type: "message", Data: map[string]any{"content": text}})
}

// RunTurn assembles instructions, streams the model's reply, executing any
// tool calls it makes, and emits the turn as a sequence of SSE events
// through emit. Errors that occur before "done" are emitted as an `error`
// event and also returned; the returned error is for logging only, since
// the client has already seen the `error` event and gets no `done`.
func (r *Runner) RunTurn(ctx context.Context, input TurnInput, emit func(sse.Event)) error {
	reader := blockStoreAdapter{store: r.blocks}

	if _, err := memorycontext.EnsureWelcomeBlocks(reader, r.blocks, input.UserID); err != nil {
		log.Printf("[agentrunner] ensure welcome blocks failed for %s: %v", input.UserID, err)
	}

	claudeMD, hasClaudeMD, err := r.workspace.ReadClaudeMD(input.UserID)
	if err != nil {
		emit(sse.Event{Type: "error", Data: map[string]any{"message": err.Error()}})
		return err
	}

	built, err := assembleInstructions(reader, claudeMD, hasClaudeMD, input)
	if err != nil {
		emit(sse.Event{Type: "error", Data: map[string]any{"message": err.Error()}})
		return err
	}

	fireAndForget("persist user message", func() error {
		return r.conversations.RecordMessage(context.Background(), input.UserID, input.ChatID, "user", built.Prompt)
	})

	messages := toLLMMessages(built.Instructions, built.Prompt)
	tools := r.toolSchemas()

	mem := &memoryTools{store: r.blocks, diffs: r.diffs, notifier: r.notifier, userID: input.UserID, agentID: "tutor"}
	ws := &workspaceTools{store: r.workspace, userID: input.UserID}
	sh := &shellTool{workspaceRoot: r.workspace.Root(input.UserID)}
	opt := &optionalTools{dialectic: r.dialectic, artifacts: r.artifacts, userID: input.UserID}

	var fullResponse string

	for round := 0; round < maxToolRounds; round++ {
		collector := &streamCollector{emit: emit, fullResponse: &fullResponse}
		callCtx, cancel := context.WithTimeout(ctx, llmCallTimeout)
		err := r.provider.ChatStream(callCtx, messages, tools, r.model, collector)
		cancel()
		if err != nil {
			emit(sse.Event{Type: "error", Data: map[string]any{"message": err.Error()}})
			return err
		}
		if len(collector.toolCalls) == 0 {
			break
		}

		assistantTurn := llm.Message{Role: "assistant", Content: "", ToolCalls: collector.toolCalls}
		messages = append(messages, assistantTurn)

		for _, tc := range collector.toolCalls {
			result, toolErr := r.executeTool(ctx, mem, ws, sh, opt, tc.Name, tc.Args)
			if toolErr != nil {
				result = fmt.Sprintf("Error: %v", toolErr)
			}
			collector.OnToolCallResult(tc, result, toolErr)
			messages = append(messages, llm.Message{Role: "tool", ToolID: tc.ID, Content: result})
		}
	}

	emit(sse.Event{Type: "done"})

	fireAndForget("persist assistant response", func() error {
		return r.conversations.RecordMessage(context.Background(), input.UserID, input.ChatID, "assistant", fullResponse)
	})

	if r.activity != nil {
		if err := r.activity.UpdateUserActivity(input.UserID, time.Now().UTC()); err != nil {
			log.Printf("[agentrunner] activity stamp failed for %s: %v", input.UserID, err)
		}
	}

	return nil
}

func (r *Runner) toolSchemas() []llm.ToolSchema {
	var schemas []llm.ToolSchema
	schemas = append(schemas, (&memoryTools{}).schemas()...)
	schemas = append(schemas, (&workspaceTools{}).schemas()...)
	schemas = append(schemas, (&shellTool{}).schema())
	schemas = append(schemas, (&optionalTools{}).schemas()...)
	return schemas
}

func (r *Runner) executeTool(ctx context.Context, mem *memoryTools, ws *workspaceTools, sh *shellTool, opt *optionalTools, name string, args json.RawMessage) (string, error) {
	switch name {
	case "list_memory_blocks", "read_memory_block", "propose_memory_edit":
		return mem.execute(name, args)
	case "read_file", "write_file", "delete_file", "list_files":
		return ws.execute(name, args)
	case "run_shell":
		return sh.execute(ctx, name, args)
	case "query_dialectic", "write_pdf_artifact":
		return opt.execute(ctx, name, args)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}
