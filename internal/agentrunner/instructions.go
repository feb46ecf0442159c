package agentrunner

import (
	"fmt"
	"strings"

	"github.com/tutord/tutor-runtime/internal/llm"
	"github.com/tutord/tutor-runtime/internal/memorycontext"
)

// defaultSystemPrompt is used when a turn's history carries no leading
// role=system message.
const defaultSystemPrompt = "You are a supportive, curious personal tutor. " +
	"Help the student reflect, learn, and build toward their goals."

// toolUsageInstructions is literal text describing the tool surface,
// concatenated into every assembled prompt (spec §4.5 step 4).
const toolUsageInstructions = `You have access to tools for reading and editing this student's memory, ` +
	`working with files in their workspace, and running shell commands scoped to that workspace. ` +
	`Memory edits are never applied directly — propose_memory_edit submits a change for the ` +
	`student to approve or reject; read the block first so your old_string matches exactly. ` +
	`Workspace file paths are always relative to the student's workspace root.`

// TurnInput is one inbound streamed-turn request (spec §4.5).
type TurnInput struct {
	UserID  string
	ChatID  string
	Message []Message
}

// Message mirrors the wire shape of one history entry.
type Message struct {
	Role    string
	Content string
}

// assembled holds the result of instruction assembly: the system
// instructions and the formatted prompt string for the final turn.
type assembled struct {
	Instructions string
	Prompt       string
}

// blockReader adapts blockstore.Store's (*Block, error) shape to the
// title/body pair memorycontext.BuildMemoryContext expects.
type blockReader interface {
	ListBlocks(userID string) ([]string, error)
	ReadBlock(userID, label string) (title, body string, err error)
}

func assembleInstructions(reader blockReader, claudeMD string, hasClaudeMD bool, input TurnInput) (assembled, error) {
	history := append([]Message(nil), input.Message...)

	systemPrompt := defaultSystemPrompt
	if len(history) > 0 && history[0].Role == "system" {
		systemPrompt = history[0].Content
		history = history[1:]
	}

	memCtx, err := memorycontext.BuildMemoryContext(reader, input.UserID, nil)
	if err != nil {
		return assembled{}, err
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(toolUsageInstructions)
	if hasClaudeMD && strings.TrimSpace(claudeMD) != "" {
		b.WriteString("\n\n")
		b.WriteString(claudeMD)
	}
	if memCtx != "" {
		b.WriteString("\n\n")
		b.WriteString(memCtx)
	}

	return assembled{
		Instructions: b.String(),
		Prompt:       formatPrompt(history),
	}, nil
}

// formatPrompt renders the remaining history into a single prompt string
// (spec §4.5 step 5). A single message is used verbatim; multi-turn
// history is rendered as alternating User:/Assistant: blocks followed by
// the current user message.
func formatPrompt(history []Message) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) == 1 {
		return history[0].Content
	}

	current := history[len(history)-1]
	prior := history[:len(history)-1]

	var b strings.Builder
	for _, m := range prior {
		switch m.Role {
		case "assistant":
			fmt.Fprintf(&b, "Assistant: %s\n\n", m.Content)
		default:
			fmt.Fprintf(&b, "User: %s\n\n", m.Content)
		}
	}
	b.WriteString("---\n\nNow, the user says:\n")
	b.WriteString(current.Content)
	return b.String()
}

// toLLMMessages converts a turn's history plus assembled instructions into
// the provider-facing message slice.
func toLLMMessages(instructions, prompt string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: prompt},
	}
}
