// Package llm defines the provider-boundary contract the agent runner (C5)
// streams turns through, independent of any particular model vendor.
package llm

import "context"

// ToolCall is one tool invocation the model requested.
type ToolCall struct {
	ID   string
	Name string
	Args []byte // raw JSON object
}

// Message is one turn of conversation history.
type Message struct {
	Role      string // "system" | "user" | "assistant" | "tool"
	Content   string
	ToolID    string     // set on role="tool", identifies which ToolCall this answers
	ToolCalls []ToolCall // set on role="assistant" messages that invoked tools
}

// ToolSchema describes one tool the model may call.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// StreamHandler receives classified chunks as a streamed turn progresses.
// Implementations must not block for long; the agent runner re-emits each
// callback as an SSE event in order.
type StreamHandler interface {
	OnReasoning(text string)
	OnToolCallStarted(tc ToolCall)
	OnToolCallResult(tc ToolCall, result string, err error)
	OnTextDelta(text string)
}

// Provider is the minimal surface the agent runner needs from a model
// backend. ChatStream must honor ctx cancellation at the next suspension
// point (spec §5 "client disconnect... cancels the underlying LLM call").
type Provider interface {
	ChatStream(ctx context.Context, msgs []Message, tools []ToolSchema, model string, h StreamHandler) error
}
