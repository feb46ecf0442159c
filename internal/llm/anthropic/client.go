// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// contract.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tutord/tutor-runtime/internal/llm"
)

const defaultMaxTokens int64 = 4096

// Client is an llm.Provider backed by the Anthropic Messages API.
type Client struct {
	sdk       anthropicsdk.Client
	model     string
	maxTokens int64
}

// Config carries the fields needed to construct a Client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
}

// New builds a Client from cfg. When cfg.Model is empty, each ChatStream
// call must supply its own model string.
func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		sdk:       anthropicsdk.NewClient(opts...),
		model:     strings.TrimSpace(cfg.Model),
		maxTokens: maxTokens,
	}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

// ChatStream issues a streaming Messages.New call and classifies each chunk
// into the llm.StreamHandler callbacks. Tool-call results are not sent
// here — callers append a role="tool" Message and call ChatStream again to
// continue the turn, mirroring the Messages API's stateless-per-call shape.
func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string, h llm.StreamHandler) error {
	system, converted, err := adaptMessages(msgs)
	if err != nil {
		return err
	}
	toolDefs, err := adaptTools(tools)
	if err != nil {
		return err
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.pickModel(model)),
		Messages:  converted,
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if len(toolDefs) > 0 {
		params.Tools = toolDefs
	}

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	toolBuffers := map[int64]*toolBuffer{}

	for stream.Next() {
		event := stream.Current()

		switch ev := event.AsAny().(type) {
		case anthropicsdk.ContentBlockStartEvent:
			switch block := ev.ContentBlock.AsAny().(type) {
			case anthropicsdk.ToolUseBlock:
				id := strings.TrimSpace(block.ID)
				if id == "" {
					id = fmt.Sprintf("call-%d", len(toolBuffers)+1)
				}
				tb := &toolBuffer{name: block.Name, id: id}
				tb.appendInitial(block.Input)
				toolBuffers[ev.Index] = tb
				if h != nil {
					h.OnToolCallStarted(llm.ToolCall{ID: tb.id, Name: tb.name, Args: tb.bytes()})
				}
			case anthropicsdk.ThinkingBlock:
				if h != nil && block.Thinking != "" {
					h.OnReasoning(block.Thinking)
				}
			}
		case anthropicsdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropicsdk.TextDelta:
				if h != nil && delta.Text != "" {
					h.OnTextDelta(delta.Text)
				}
			case anthropicsdk.InputJSONDelta:
				if tb := toolBuffers[ev.Index]; tb != nil {
					tb.appendPartial(delta.PartialJSON)
				}
			case anthropicsdk.ThinkingDelta:
				if h != nil && delta.Thinking != "" {
					h.OnReasoning(delta.Thinking)
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		log.Printf("[llm] anthropic stream error: %v", err)
		return err
	}
	return nil
}

// adaptMessages splits a leading system message off msgs and converts the
// rest into Anthropic message params. Tool results (role="tool") become
// tool_result content blocks on a user message.
func adaptMessages(msgs []llm.Message) (string, []anthropicsdk.MessageParam, error) {
	var system string
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		case "assistant":
			blocks := make([]anthropicsdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropicsdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if len(tc.Args) > 0 {
					_ = json.Unmarshal(tc.Args, &input)
				}
				blocks = append(blocks, anthropicsdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropicsdk.NewAssistantMessage(blocks...))
		case "tool":
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewToolResultBlock(m.ToolID, m.Content, false)))
		default:
			return "", nil, fmt.Errorf("anthropic: unknown message role %q", m.Role)
		}
	}
	return system, out, nil
}

func adaptTools(tools []llm.ToolSchema) ([]anthropicsdk.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{
					Properties: t.Parameters["properties"],
				},
			},
		})
	}
	return out, nil
}

// toolBuffer accumulates a streamed tool call's partial JSON input, since
// Anthropic streams tool arguments as a sequence of InputJSONDelta chunks
// rather than one block.
type toolBuffer struct {
	name    string
	id      string
	builder strings.Builder
}

func (b *toolBuffer) appendInitial(input json.RawMessage) {
	if len(input) > 0 && string(input) != "{}" {
		b.builder.Write(input)
	}
}

func (b *toolBuffer) appendPartial(partial string) {
	b.builder.WriteString(partial)
}

func (b *toolBuffer) bytes() []byte {
	if b.builder.Len() == 0 {
		return []byte("{}")
	}
	return []byte(b.builder.String())
}
