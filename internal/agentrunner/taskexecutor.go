package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tutord/tutor-runtime/internal/blockstore"
	"github.com/tutord/tutor-runtime/internal/llm"
	"github.com/tutord/tutor-runtime/internal/notifications"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
	"github.com/tutord/tutor-runtime/internal/workspace"
)

// TaskToolExecutor exposes the same tool implementations a chat turn uses
// (spec §4.5) to background task execution (spec §4.9), restricted to the
// tool names a given task declares in its allow-list.
type TaskToolExecutor struct {
	blocks    *blockstore.Store
	diffs     *pendingdiff.Store
	workspace *workspace.Store
	notifier  *notifications.Manager
	dialectic DialecticQuerier
	artifacts ArtifactWriter
}

// NewTaskToolExecutor builds a TaskToolExecutor. Dialectic/Artifacts
// default to no-op implementations when left nil.
func NewTaskToolExecutor(blocks *blockstore.Store, diffs *pendingdiff.Store, ws *workspace.Store, notifier *notifications.Manager, dialectic DialecticQuerier, artifacts ArtifactWriter) *TaskToolExecutor {
	if dialectic == nil {
		dialectic = NoopDialecticQuerier{}
	}
	if artifacts == nil {
		artifacts = NoopArtifactWriter{}
	}
	return &TaskToolExecutor{
		blocks:    blocks,
		diffs:     diffs,
		workspace: ws,
		notifier:  notifier,
		dialectic: dialectic,
		artifacts: artifacts,
	}
}

// Schemas returns the tool schemas for the given allow-listed names, in no
// particular order, silently dropping names this runtime does not
// implement.
func (e *TaskToolExecutor) Schemas(names []string) []llm.ToolSchema {
	all := make(map[string]llm.ToolSchema)
	for _, s := range (&memoryTools{}).schemas() {
		all[s.Name] = s
	}
	for _, s := range (&workspaceTools{}).schemas() {
		all[s.Name] = s
	}
	shellSchema := (&shellTool{}).schema()
	all[shellSchema.Name] = shellSchema
	for _, s := range (&optionalTools{}).schemas() {
		all[s.Name] = s
	}

	var out []llm.ToolSchema
	for _, name := range names {
		if s, ok := all[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Execute dispatches a single tool call for userID, routing to the same
// underlying implementation a chat turn would use.
func (e *TaskToolExecutor) Execute(ctx context.Context, userID, name string, args json.RawMessage) (string, error) {
	mem := &memoryTools{store: e.blocks, diffs: e.diffs, notifier: e.notifier, userID: userID, agentID: "background-task"}
	ws := &workspaceTools{store: e.workspace, userID: userID}
	sh := &shellTool{workspaceRoot: e.workspace.Root(userID)}
	opt := &optionalTools{dialectic: e.dialectic, artifacts: e.artifacts, userID: userID}

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
