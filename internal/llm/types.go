// Package llm implements the model gateway: one canonical request/response
// contract over the supported LLM providers. Each provider owns its own
// wire-format translation; nothing outside this package ever sees a
// provider-native payload.
package llm

import "log/slog"

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is the canonical chat message shape shared by all providers.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`  // assistant messages
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages: the call being answered
	ToolName   string     `json:"tool_name,omitempty"`    // tool messages: the tool that produced this
}

// ToolCall is a single tool invocation requested by the model. ID is the
// provider-assigned identifier and must round-trip so a later tool-result
// message can reference the exact call that produced it.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDef describes a tool advertised to the model. Parameters is a
// JSON-schema-shaped document passed through structurally; the gateway
// never validates or reinterprets it.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Request is one model invocation. Every invocation is a fresh network
// call; the gateway does not retry and does not cache.
type Request struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []Message
	Tools       []ToolDef
}

// Response is the unified response from any provider. Wire format
// conversion happens at provider boundaries.
type Response struct {
	Model        string
	Content      string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// TokensUsed returns the combined token count for the invocation.
func (r *Response) TokensUsed() int {
	return r.InputTokens + r.OutputTokens
}
