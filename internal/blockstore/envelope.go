package blockstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// formatHumanCommit builds a direct-write commit message: a summary line
// followed by an "Author: <name>" trailer, per spec §4.1.
func formatHumanCommit(message, author string) string {
	return fmt.Sprintf("%s\n\nAuthor: %s", message, author)
}

// extractAuthor scans a commit message for a trailing "Author: <name>" line,
// returning "unknown" if none is present.
func extractAuthor(message string) string {
	for _, line := range strings.Split(message, "\n") {
		if rest, ok := strings.CutPrefix(line, "Author: "); ok {
			return strings.TrimSpace(rest)
		}
	}
	return "unknown"
}

// firstLine returns the subject line of a (possibly multi-line) commit
// message.
func firstLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return message[:idx]
	}
	return message
}

// formatEnvelope marshals a proposal's metadata envelope as the commit's
// entire message (no body), per spec §9.
func formatEnvelope(env metadataEnvelope) (string, error) {
	encoded, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// parseEnvelope decodes a commit message as a metadata envelope. Non-JSON
// messages are treated as no-metadata (permissive parser, per spec §6).
func parseEnvelope(message string) metadataEnvelope {
	var env metadataEnvelope
	_ = json.Unmarshal([]byte(strings.TrimSpace(message)), &env)
	return env
}
