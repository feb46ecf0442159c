package agentrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/tutord/tutor-runtime/internal/llm"
)

// shellTimeout bounds every shell tool invocation (spec §5 suggested
// sub-process timeout).
const shellTimeout = 30 * time.Second

// shellTool runs a command with cwd pinned to the user's workspace root.
// There is no allowlist: the workspace sandbox is the security boundary,
// not the command surface.
type shellTool struct {
	workspaceRoot string
}

func (t *shellTool) schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        "run_shell",
		Description: "Run a shell command with its working directory set to the student's workspace.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"command": map[string]any{"type": "string"}},
			"required":   []string{"command"},
		},
	}
}

func (t *shellTool) run(ctx context.Context, command string) string {
	if command == "" {
		return "Error: command cannot be empty."
	}

	execCtx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	cmd.Dir = t.workspaceRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if execCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Command timed out after %s.", shellTimeout)
	}
	if err != nil {
		return fmt.Sprintf("Command failed: %v\nstdout:\n%s\nstderr:\n%s", err, stdout.String(), stderr.String())
	}
	return stdout.String()
}

func (t *shellTool) execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	if name != "run_shell" {
		return "", fmt.Errorf("unknown shell tool %q", name)
	}
	var a struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("parse run_shell args: %w", err)
	}
	return t.run(ctx, a.Command), nil
}
