package agent

import (
	"context"
	"encoding/json"
)

// LLMProvider is the interface for inference backends.
//
// Implementations handle the specifics of one vendor API (Anthropic, OpenAI,
// Gemini, Bedrock) while presenting a unified streaming interface to the
// orchestration loop.
//
// Implementations must be safe for concurrent use; multiple turns may call
// Complete simultaneously.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for one inference call.
type CompletionRequest struct {
	// Model specifies which model to use. If empty, the provider's default
	// model is used.
	Model string `json:"model"`

	// System is the system prompt. Handled separately from messages in most
	// vendor APIs.
	System string `json:"system,omitempty"`

	// Messages is the conversation transcript in chronological order. Must
	// include at least one message.
	Messages []CompletionMessage `json:"messages"`

	// Tools defines the functions the model may request. If empty, no tool
	// calling is available.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the length of the generated response. If 0 the
	// provider default is used.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// CompletionMessage is a single message in a provider transcript.
//
// Role values: "user", "assistant", "tool". "system" entries may appear when
// history contains injected notices; providers fold or skip them since the
// system prompt travels separately.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls holds tool requests issued by the assistant in this message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults holds outcomes of executed tools, sent back with role "tool".
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its result. Assigned by the provider;
	// synthesized when the vendor API does not supply one.
	ID string `json:"id"`

	// Name is the registered tool name.
	Name string `json:"name"`

	// Input is the raw JSON arguments produced by the model.
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing one tool call.
//
// Errors are also communicated via ToolResult with IsError=true so the model
// can read the failure and correct its next step instead of aborting the turn.
type ToolResult struct {
	// ToolCallID matches the originating ToolCall.ID. Set by the loop; tools
	// themselves leave it empty.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Content is the tool output, rendered as compact JSON.
	Content string `json:"content"`

	// IsError marks the result as an error the model should react to.
	IsError bool `json:"is_error,omitempty"`
}

// CompletionChunk is one element of a streaming provider response.
type CompletionChunk struct {
	// Text contains partial response text.
	Text string `json:"text,omitempty"`

	// ToolCall contains a complete tool request once its arguments have
	// finished streaming.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Done is true on the final chunk of a successful stream.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream when non-nil.
	Error error `json:"-"`

	// InputTokens and OutputTokens report usage. Only populated on the final
	// chunk, and only when the vendor reports them.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available model and its capabilities.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Tool is the interface for executable agent tools.
//
// Implementations read the caller's identity from the context when they need
// to reach user-scoped services; tool schemas never carry user identifiers.
type Tool interface {
	// Name returns the tool name for function calling. Must be alphanumeric
	// with underscores.
	Name() string

	// Description returns a natural language description the model uses to
	// decide when to call the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with arguments matching Schema.
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}
