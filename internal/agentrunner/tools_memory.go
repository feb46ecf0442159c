package agentrunner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tutord/tutor-runtime/internal/apperr"
	"github.com/tutord/tutor-runtime/internal/blockstore"
	"github.com/tutord/tutor-runtime/internal/llm"
	"github.com/tutord/tutor-runtime/internal/notifications"
	"github.com/tutord/tutor-runtime/internal/pendingdiff"
)

// memoryTools wires the three memory-block tools of spec §4.6 to a single
// user, agent and block store.
type memoryTools struct {
	store    *blockstore.Store
	diffs    *pendingdiff.Store
	notifier *notifications.Manager
	userID   string
	agentID  string
}

func (t *memoryTools) schemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        "list_memory_blocks",
			Description: "List all memory blocks available for the current student.",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		},
		{
			Name:        "read_memory_block",
			Description: "Read the current title and body of a memory block. Call this before proposing an edit.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"block_label": map[string]any{"type": "string"},
				},
				"required": []string{"block_label"},
			},
		},
		{
			Name: "propose_memory_edit",
			Description: "Propose a surgical string-replacement edit to a memory block. old_string must match " +
				"exactly and must be unique in the block unless replace_all is true. The edit requires student " +
				"approval before it is applied.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"block_label": map[string]any{"type": "string"},
					"old_string":  map[string]any{"type": "string"},
					"new_string":  map[string]any{"type": "string"},
					"reasoning":   map[string]any{"type": "string"},
					"replace_all": map[string]any{"type": "boolean"},
				},
				"required": []string{"block_label", "old_string", "new_string", "reasoning"},
			},
		},
	}
}

func (t *memoryTools) listMemoryBlocks() string {
	labels, err := t.store.ListBlocks(t.userID)
	if err != nil {
		return fmt.Sprintf("Error listing memory blocks: %v", err)
	}
	if len(labels) == 0 {
		return "No memory blocks exist for this student yet."
	}
	lines := []string{"Available memory blocks:", ""}
	for _, label := range labels {
		block, err := t.store.ReadBlock(t.userID, label)
		title := label
		if err == nil && block.Title != "" {
			title = block.Title
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", label, title))
	}
	return strings.Join(lines, "\n")
}

func (t *memoryTools) readMemoryBlock(blockLabel string) string {
	block, err := t.store.ReadBlock(t.userID, blockLabel)
	if err != nil {
		if apperr.KindOf(err) == apperr.BlockNotFound {
			return fmt.Sprintf("Memory block '%s' not found.", blockLabel)
		}
		return fmt.Sprintf("Error reading memory block: %v", err)
	}
	body := block.Body
	if body == "" {
		body = "(empty)"
	}
	return fmt.Sprintf("# %s\n\n%s", block.Title, body)
}

func (t *memoryTools) proposeMemoryEdit(blockLabel, oldString, newString, reasoning string, replaceAll bool) string {
	result, err := t.store.ProposeSurgicalEdit(t.userID, blockLabel, t.agentID, oldString, newString, reasoning, replaceAll)
	if err != nil {
		if apperr.KindOf(err) == apperr.BlockNotFound {
			return fmt.Sprintf("Error: Memory block '%s' not found.", blockLabel)
		}
		return fmt.Sprintf("Error: %v", err)
	}

	if t.diffs != nil {
		block, readErr := t.store.ReadBlock(t.userID, blockLabel)
		currentBody := ""
		if readErr == nil {
			currentBody = block.Body
		}
		diff := pendingdiff.New(t.userID, t.agentID, blockLabel, pendingdiff.OpFullReplace,
			currentBody, result.NewBody, reasoning, pendingdiff.ConfidenceMedium)
		if err := t.diffs.Save(diff); err != nil {
			return fmt.Sprintf("Error recording pending diff: %v", err)
		}
		if _, err := t.diffs.SupersedeOlder(t.userID, blockLabel, diff.ID); err != nil {
			return fmt.Sprintf("Error recording pending diff: %v", err)
		}
	}
	if t.notifier != nil {
		t.notifier.NotifyProposalCreated(t.userID, blockLabel)
	}

	return fmt.Sprintf(
		"Edit proposal created for block '%s'. The user will be asked to approve this change. Reasoning provided: %s",
		blockLabel, reasoning)
}

type proposeMemoryEditArgs struct {
	BlockLabel string `json:"block_label"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	Reasoning  string `json:"reasoning"`
	ReplaceAll bool   `json:"replace_all"`
}

func (t *memoryTools) execute(name string, args json.RawMessage) (string, error) {
	switch name {
	case "list_memory_blocks":
		return t.listMemoryBlocks(), nil
	case "read_memory_block":
		var a struct {
			BlockLabel string `json:"block_label"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parse read_memory_block args: %w", err)
		}
		return t.readMemoryBlock(a.BlockLabel), nil
	case "propose_memory_edit":
		var a proposeMemoryEditArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parse propose_memory_edit args: %w", err)
		}
		return t.proposeMemoryEdit(a.BlockLabel, a.OldString, a.NewString, a.Reasoning, a.ReplaceAll), nil
	default:
		return "", fmt.Errorf("unknown memory tool %q", name)
	}
}
