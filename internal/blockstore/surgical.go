package blockstore

import (
	"fmt"
	"strings"

	"github.com/tutord/tutor-runtime/internal/apperr"
)

// SurgicalEditResult carries the outcome of a successful unique-string-
// replacement proposal.
type SurgicalEditResult struct {
	Branch  string
	NewBody string
}

// ProposeSurgicalEdit implements the unique-string-replacement precondition
// chain of spec §4.6, shared by the agent-facing propose_memory_edit tool
// and the HTTP propose endpoint. Each precondition fails with its own
// descriptive message; the apperr.Kind is BlockNotFound for a missing block,
// DuplicateEdit for a non-unique old_string, and InvalidInput for the rest,
// so each caller can render it in its own idiom (a descriptive string for
// the agent, a 400/404 JSON body for HTTP).
func (s *Store) ProposeSurgicalEdit(userID, label, agentID, oldString, newString, reasoning string, replaceAll bool) (*SurgicalEditResult, error) {
	if oldString == newString {
		return nil, apperr.New(apperr.InvalidInput, "old_string and new_string must be different")
	}
	if oldString == "" {
		return nil, apperr.New(apperr.InvalidInput, "old_string cannot be empty")
	}
	if reasoning == "" {
		return nil, apperr.New(apperr.InvalidInput, "reasoning is required to explain the edit to the user")
	}

	block, err := s.ReadBlock(userID, label)
	if err != nil {
		return nil, err
	}

	occurrences := strings.Count(block.Body, oldString)
	if occurrences == 0 {
		return nil, apperr.New(apperr.InvalidInput, fmt.Sprintf(
			"old_string not found in block %q; make sure you've read the block first and the text matches exactly (including whitespace and newlines)",
			label))
	}
	if occurrences > 1 && !replaceAll {
		return nil, apperr.New(apperr.DuplicateEdit, fmt.Sprintf(
			"old_string appears %d times in block %q; provide a larger unique string with more surrounding context, or set replace_all to replace all occurrences",
			occurrences, label))
	}

	var newBody string
	if replaceAll {
		newBody = strings.ReplaceAll(block.Body, oldString, newString)
	} else {
		newBody = strings.Replace(block.Body, oldString, newString, 1)
	}

	branch, err := s.CreateProposal(userID, label, newBody, agentID, reasoning, "medium")
	if err != nil {
		return nil, err
	}
	return &SurgicalEditResult{Branch: branch, NewBody: newBody}, nil
}
