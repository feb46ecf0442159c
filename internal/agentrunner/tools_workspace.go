package agentrunner

import (
	"encoding/json"
	"fmt"

	"github.com/tutord/tutor-runtime/internal/llm"
	"github.com/tutord/tutor-runtime/internal/workspace"
)

// workspaceTools wires the file read/write/delete/list tools of spec §4.4
// to a single user's workspace.
type workspaceTools struct {
	store  *workspace.Store
	userID string
}

func (t *workspaceTools) schemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        "read_file",
			Description: "Read a text file from the student's workspace. Path is relative to the workspace root.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
		{
			Name:        "write_file",
			Description: "Write (creating or overwriting) a text file in the student's workspace, up to 10 MiB.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        "delete_file",
			Description: "Delete a file from the student's workspace.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
				"required":   []string{"path"},
			},
		},
		{
			Name:        "list_files",
			Description: "List every file in the student's workspace with size and hash.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}
}

func (t *workspaceTools) readFile(path string) string {
	data, err := t.store.ReadFile(t.userID, path)
	if err != nil {
		return fmt.Sprintf("Error reading %q: %v", path, err)
	}
	return string(data)
}

func (t *workspaceTools) writeFile(path, content string) string {
	info, err := t.store.WriteFile(t.userID, path, []byte(content), "agent")
	if err != nil {
		return fmt.Sprintf("Error writing %q: %v", path, err)
	}
	return fmt.Sprintf("Wrote %q (%d bytes, %s).", path, info.Size, info.Hash)
}

func (t *workspaceTools) deleteFile(path string) string {
	if err := t.store.DeleteFile(t.userID, path); err != nil {
		return fmt.Sprintf("Error deleting %q: %v", path, err)
	}
	return fmt.Sprintf("Deleted %q.", path)
}

func (t *workspaceTools) listFiles() string {
	files, total, err := t.store.ListFiles(t.userID)
	if err != nil {
		return fmt.Sprintf("Error listing workspace files: %v", err)
	}
	if len(files) == 0 {
		return "The workspace is empty."
	}
	out := fmt.Sprintf("Workspace files (%d bytes total):\n", total)
	for _, f := range files {
		out += fmt.Sprintf("- %s (%d bytes)\n", f.Path, f.Size)
	}
	return out
}

func (t *workspaceTools) execute(name string, args json.RawMessage) (string, error) {
	switch name {
	case "read_file":
		var a struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parse read_file args: %w", err)
		}
		return t.readFile(a.Path), nil
	case "write_file":
		var a struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parse write_file args: %w", err)
		}
		return t.writeFile(a.Path, a.Content), nil
	case "delete_file":
		var a struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parse delete_file args: %w", err)
		}
		return t.deleteFile(a.Path), nil
	case "list_files":
		return t.listFiles(), nil
	default:
		return "", fmt.Errorf("unknown workspace tool %q", name)
	}
}
