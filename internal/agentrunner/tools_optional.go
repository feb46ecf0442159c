package agentrunner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tutord/tutor-runtime/internal/llm"
)

// DialecticQuerier answers a free-form question about a student, returning
// an insight string (spec §4.5). Backed by an external collaborator in
// production; the zero value is safe and reports itself as unconfigured.
type DialecticQuerier interface {
	Query(ctx context.Context, userID, question string) (insight string, err error)
}

// NoopDialecticQuerier is used when no dialectic collaborator is
// configured.
type NoopDialecticQuerier struct{}

func (NoopDialecticQuerier) Query(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("dialectic query collaborator is not configured")
}

// ArtifactWriter produces a PDF artifact from markdown-like content,
// returning a path or URL the student can retrieve it from. Optional per
// spec §4.5; the zero value reports itself as unconfigured.
type ArtifactWriter interface {
	WritePDF(ctx context.Context, userID, title, content string) (location string, err error)
}

// NoopArtifactWriter is used when no PDF backend is configured.
type NoopArtifactWriter struct{}

func (NoopArtifactWriter) WritePDF(context.Context, string, string, string) (string, error) {
	return "", fmt.Errorf("PDF artifact production is not configured")
}

// optionalTools wires the dialectic-query and PDF-artifact tools.
type optionalTools struct {
	dialectic DialecticQuerier
	artifacts ArtifactWriter
	userID    string
}

func (t *optionalTools) schemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        "query_dialectic",
			Description: "Ask a free-form question about this student and receive a synthesized insight.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"question": map[string]any{"type": "string"}},
				"required":   []string{"question"},
			},
		},
		{
			Name:        "write_pdf_artifact",
			Description: "Produce a PDF artifact from markdown-like content for the student to download.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string"},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"title", "content"},
			},
		},
	}
}

func (t *optionalTools) execute(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case "query_dialectic":
		var a struct {
			Question string `json:"question"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parse query_dialectic args: %w", err)
		}
		insight, err := t.dialectic.Query(ctx, t.userID, a.Question)
		if err != nil {
			return fmt.Sprintf("Error querying dialectic: %v", err), nil
		}
		return insight, nil
	case "write_pdf_artifact":
		var a struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("parse write_pdf_artifact args: %w", err)
		}
		location, err := t.artifacts.WritePDF(ctx, t.userID, a.Title, a.Content)
		if err != nil {
			return fmt.Sprintf("Error producing PDF artifact: %v", err), nil
		}
		return fmt.Sprintf("PDF artifact ready at %s.", location), nil
	default:
		return "", fmt.Errorf("unknown optional tool %q", name)
	}
}
