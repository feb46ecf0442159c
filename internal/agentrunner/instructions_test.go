package agentrunner

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeBlockReader struct {
	labels map[string]map[string]string // userID -> label -> "title\x00body"
}

func (f *fakeBlockReader) ListBlocks(userID string) ([]string, error) {
	var out []string
	for l := range f.labels[userID] {
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeBlockReader) ReadBlock(userID, label string) (string, string, error) {
	return "Student", "Loves math.", nil
}

func TestAssembleInstructions_ExtractsLeadingSystemMessage(t *testing.T) {
	reader := &fakeBlockReader{labels: map[string]map[string]string{}}
	built, err := assembleInstructions(reader, "", false, TurnInput{
		UserID: "alice",
		Message: []Message{
			{Role: "system", Content: "Be encouraging."},
			{Role: "user", Content: "Hi there"},
		},
	})
	require.NoError(t, err)
	require.Contains(t, built.Instructions, "Be encouraging.")
	require.Equal(t, "Hi there", built.Prompt)
}

func TestAssembleInstructions_FallsBackToDefaultSystemPrompt(t *testing.T) {
	reader := &fakeBlockReader{labels: map[string]map[string]string{}}
	built, err := assembleInstructions(reader, "", false, TurnInput{
		UserID:  "alice",
		Message: []Message{{Role: "user", Content: "Hi"}},
	})
	require.NoError(t, err)
	require.Contains(t, built.Instructions, defaultSystemPrompt)
}

func TestAssembleInstructions_IncludesClaudeMDWhenPresent(t *testing.T) {
	reader := &fakeBlockReader{labels: map[string]map[string]string{}}
	built, err := assembleInstructions(reader, "# Project rules", true, TurnInput{
		UserID:  "alice",
		Message: []Message{{Role: "user", Content: "Hi"}},
	})
	require.NoError(t, err)
	require.Contains(t, built.Instructions, "# Project rules")
}

func TestAssembleInstructions_IncludesMemoryContextWhenBlocksExist(t *testing.T) {
	reader := &fakeBlockReader{labels: map[string]map[string]string{"alice": {"student": ""}}}
	built, err := assembleInstructions(reader, "", false, TurnInput{
		UserID:  "alice",
		Message: []Message{{Role: "user", Content: "Hi"}},
	})
	require.NoError(t, err)
	require.Contains(t, built.Instructions, "## Student Memory")
	require.Contains(t, built.Instructions, "Loves math.")
}

func TestFormatPrompt_SingleMessageUsedVerbatim(t *testing.T) {
	require.Equal(t, "hello", formatPrompt([]Message{{Role: "user", Content: "hello"}}))
}

func TestFormatPrompt_MultiTurnRendersAlternatingBlocks(t *testing.T) {
	out := formatPrompt([]Message{
		{Role: "user", Content: "What's 2+2?"},
		{Role: "assistant", Content: "4"},
		{Role: "user", Content: "And 3+3?"},
	})
	require.Contains(t, out, "User: What's 2+2?")
	require.Contains(t, out, "Assistant: 4")
	require.Contains(t, out, "---\n\nNow, the user says:\nAnd 3+3?")
}

func TestFormatPrompt_EmptyHistoryReturnsEmptyString(t *testing.T) {
	require.Equal(t, "", formatPrompt(nil))
}
