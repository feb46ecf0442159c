package agentrunner

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tutord/tutor-runtime/internal/blockstore"
	"github.com/tutord/tutor-runtime/internal/llm"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
	"github.com/tutord/tutor-runtime/internal/sse"
	"github.com/tutord/tutor-runtime/internal/workspace"
)

type fakeProvider struct {
	responses []func(h llm.StreamHandler)
	call      int
}

func (p *fakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	if p.call >= len(p.responses) {
		return nil
	}
	p.responses[p.call](h)
	p.call++
	return nil
}

func TestRunTurn_SimpleReplyEmitsMessageAndDone(t *testing.T) {
	dataRoot := t.TempDir()
	provider := &fakeProvider{responses: []func(llm.StreamHandler){
		func(h llm.StreamHandler) { h.OnTextDelta("Hello!") },
	}}

	runner := New(Config{
		Provider:  provider,
		Blocks:    blockstore.New(dataRoot),
		Diffs:     pendingdiff.NewStore(dataRoot),
		Workspace: workspace.New(dataRoot),
		Model:     "claude-test",
	})

	var events []sse.Event
	err := runner.RunTurn(context.Background(), TurnInput{
		UserID: "alice",
		ChatID: "chat-1",
		Message: []Message{
			{Role: "user", Content: "Hi there"},
		},
	}, func(e sse.Event) { events = append(events, e) })
	require.NoError(t, err)

	require.NotEmpty(t, events)
	require.Equal(t, "done", events[len(events)-1].Type)

	var sawMessage bool
	for _, e := range events {
		if e.Type == "message" {
			sawMessage = true
		}
	}
	require.True(t, sawMessage)
}

func TestRunTurn_ExecutesToolCallThenContinues(t *testing.T) {
	dataRoot := t.TempDir()

	toolArgs, err := json.Marshal(map[string]string{})
	require.NoError(t, err)

	provider := &fakeProvider{responses: []func(llm.StreamHandler){
		func(h llm.StreamHandler) {
			h.OnToolCallStarted(llm.ToolCall{ID: "call-1", Name: "list_memory_blocks", Args: toolArgs})
		},
		func(h llm.StreamHandler) { h.OnTextDelta("All done.") },
	}}

	runner := New(Config{
		Provider:  provider,
		Blocks:    blockstore.New(dataRoot),
		Diffs:     pendingdiff.NewStore(dataRoot),
		Workspace: workspace.New(dataRoot),
		Model:     "claude-test",
	})

	var events []sse.Event
	err = runner.RunTurn(context.Background(), TurnInput{
		UserID:  "alice",
		ChatID:  "chat-1",
		Message: []Message{{Role: "user", Content: "what memory blocks do I have?"}},
	}, func(e sse.Event) { events = append(events, e) })
	require.NoError(t, err)

	require.Equal(t, 2, provider.call)

	var sawStarted, sawCompleted bool
	for _, e := range events {
		if e.Type == "tool_call" {
			data := e.Data.(map[string]any)
			if data["status"] == "started" {
				sawStarted = true
			}
			if data["status"] == "completed" {
				sawCompleted = true
			}
		}
	}
	require.True(t, sawStarted)
	require.True(t, sawCompleted)
	require.Equal(t, "done", events[len(events)-1].Type)
}
