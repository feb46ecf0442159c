// Package blockstore implements the versioned per-user memory block store
// (spec.md C1): markdown files with YAML front-matter under a user-scoped
// git repository, plus the branch-based proposal lifecycle.
package blockstore

import "time"

// Block is the authoritative stored entity: a single memory block as read
// from main.
type Block struct {
	Label     string    `json:"label"`
	Title     string    `json:"title"`
	SchemaRef string    `json:"schema,omitempty"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Version is one commit touching a block's file.
type Version struct {
	CommitSHA string    `json:"commit_sha"`
	Message   string    `json:"message"` // first line only
	Author    string    `json:"author"`  // from the "Author:" trailer ("user" | "system" | "agent:<id>"); "unknown" when absent
	Timestamp time.Time `json:"timestamp"`
	IsCurrent bool      `json:"is_current"`
}

// Proposal describes a live proposal branch, derived from its tip commit's
// metadata envelope.
type Proposal struct {
	Branch     string    `json:"branch"`
	BlockLabel string    `json:"block_label"`
	AgentID    string    `json:"agent_id"`
	Reasoning  string    `json:"reasoning"`
	Confidence string    `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProposalDiff is the computed difference between main and a proposal branch
// for one block, combined with the tip commit's metadata envelope.
type ProposalDiff struct {
	CurrentBody string    `json:"current_body"`
	ProposedBody string   `json:"proposed_body"`
	AgentID     string    `json:"agent_id"`
	Reasoning   string    `json:"reasoning"`
	Confidence  string    `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
}

// metadataEnvelope is the JSON object stored as a proposal commit's subject
// line (spec §9: "metadata-as-commit-message").
type metadataEnvelope struct {
	AgentID    string `json:"agent_id"`
	Reasoning  string `json:"reasoning"`
	Confidence string `json:"confidence"`
	BlockLabel string `json:"block_label"`
	UserID     string `json:"user_id"`
}

// frontMatter is the YAML document stored at the top of a block file.
type frontMatter struct {
	Block     string `yaml:"block"`
	Title     string `yaml:"title,omitempty"`
	Schema    string `yaml:"schema,omitempty"`
	UpdatedAt string `yaml:"updated_at,omitempty"`
}
