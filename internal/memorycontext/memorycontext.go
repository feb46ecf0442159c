// Package memorycontext implements the Memory Context Builder (spec.md C3):
// a pure function that renders a user's memory blocks into the markdown
// section injected into agent prompts, plus welcome-block seeding.
package memorycontext

import (
	"fmt"
	"strings"
)

// BlockReader is the subset of the block store this package depends on. It
// is declared locally (rather than importing blockstore directly) so
// build_memory_context stays a pure function of whatever its caller passes
// in — the contract spec §8 requires ("identical state => identical output")
// is easiest to keep honest against a narrow interface.
type BlockReader interface {
	ListBlocks(userID string) ([]string, error)
	ReadBlock(userID, label string) (title, body string, err error)
}

// BlockWriter is the subset needed to seed welcome blocks.
type BlockWriter interface {
	WriteBlock(userID, label, body, message, author, schema, title string) (string, error)
}

// BuildMemoryContext renders the literal, stable markdown section described
// in spec §4.3. When labels is non-empty, only matching blocks are
// included. Returns "" when no blocks match. No metadata beyond title and
// label is ever emitted, to avoid leaking anything beyond what the format
// documents.
func BuildMemoryContext(reader BlockReader, userID string, labels []string) (string, error) {
	allLabels, err := reader.ListBlocks(userID)
	if err != nil {
		return "", err
	}

	var wanted []string
	if len(labels) == 0 {
		wanted = allLabels
	} else {
		allowed := make(map[string]bool, len(labels))
		for _, l := range labels {
			allowed[l] = true
		}
		for _, l := range allLabels {
			if allowed[l] {
				wanted = append(wanted, l)
			}
		}
	}
	if len(wanted) == 0 {
		return "", nil
	}

	sections := make([]string, 0, len(wanted)+1)
	sections = append(sections, "## Student Memory\n")
	for _, label := range wanted {
		title, body, err := reader.ReadBlock(userID, label)
		if err != nil {
			return "", err
		}
		if title == "" {
			title = titleCase(label)
		}
		if body == "" {
			body = "(empty)"
		}
		sections = append(sections, fmt.Sprintf("### %s (label: `%s`)\n\n%s\n", title, label, body))
	}
	return strings.Join(sections, "\n"), nil
}

// EnsureWelcomeBlocks seeds a brand-new user with the four welcome
// templates, returning true only if it created them (idempotent: a no-op on
// any user that already has at least one block).
func EnsureWelcomeBlocks(reader BlockReader, writer BlockWriter, userID string) (bool, error) {
	existing, err := reader.ListBlocks(userID)
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	for _, tmpl := range welcomeTemplates {
		message := fmt.Sprintf("Initialize %s from welcome template", tmpl.Label)
		if _, err := writer.WriteBlock(userID, tmpl.Label, tmpl.Body, message, "system", "", tmpl.Title); err != nil {
			return false, err
		}
	}
	return true, nil
}

func titleCase(label string) string {
	words := strings.Split(strings.ReplaceAll(label, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
