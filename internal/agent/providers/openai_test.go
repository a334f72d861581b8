package providers

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/steward/internal/agent"
)

var _ agent.LLMProvider = (*OpenAIProvider)(nil)

func TestNewOpenAIProvider(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}

	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	if provider.defaultModel != defaultOpenAIModel {
		t.Errorf("defaultModel = %q, want %q", provider.defaultModel, defaultOpenAIModel)
	}

	provider, err = NewOpenAIProvider(OpenAIConfig{
		APIKey:       "test-key",
		BaseURL:      "http://localhost:11434/v1",
		DefaultModel: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("failed to create provider with overrides: %v", err)
	}
	if provider.defaultModel != "gpt-4o-mini" {
		t.Errorf("defaultModel = %q", provider.defaultModel)
	}
}

func TestOpenAIProviderMetadata(t *testing.T) {
	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	if provider.Name() != "openai" {
		t.Errorf("Name() = %q, want openai", provider.Name())
	}
	if !provider.SupportsTools() {
		t.Error("expected SupportsTools to return true")
	}

	ids := make(map[string]bool)
	for _, m := range provider.Models() {
		ids[m.ID] = true
		if m.ContextSize <= 0 {
			t.Errorf("model %s has invalid context size", m.ID)
		}
	}
	if !ids[defaultOpenAIModel] {
		t.Errorf("expected default model %s in Models()", defaultOpenAIModel)
	}
}

func TestOpenAIConvertMessages(t *testing.T) {
	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tests := []struct {
		name     string
		messages []agent.CompletionMessage
		system   string
		wantLen  int
		validate func(t *testing.T, result []openai.ChatCompletionMessage)
	}{
		{
			name: "system prompt is injected first",
			messages: []agent.CompletionMessage{
				{Role: "user", Content: "Hello"},
			},
			system:  "You manage tasks.",
			wantLen: 2,
			validate: func(t *testing.T, result []openai.ChatCompletionMessage) {
				if result[0].Role != openai.ChatMessageRoleSystem {
					t.Errorf("first role = %q, want system", result[0].Role)
				}
				if result[0].Content != "You manage tasks." {
					t.Errorf("system content = %q", result[0].Content)
				}
				if result[1].Role != openai.ChatMessageRoleUser {
					t.Errorf("second role = %q, want user", result[1].Role)
				}
			},
		},
		{
			name: "no system prompt",
			messages: []agent.CompletionMessage{
				{Role: "user", Content: "Hello"},
				{Role: "assistant", Content: "Hi!"},
			},
			wantLen: 2,
		},
		{
			name: "assistant tool calls ride on the message",
			messages: []agent.CompletionMessage{
				{
					Role:    "assistant",
					Content: "",
					ToolCalls: []agent.ToolCall{
						{ID: "call_1", Name: "list_tasks", Input: json.RawMessage(`{"completed":false}`)},
						{ID: "call_2", Name: "current_datetime", Input: json.RawMessage(`{}`)},
					},
				},
			},
			wantLen: 1,
			validate: func(t *testing.T, result []openai.ChatCompletionMessage) {
				if len(result[0].ToolCalls) != 2 {
					t.Fatalf("got %d tool calls, want 2", len(result[0].ToolCalls))
				}
				if result[0].ToolCalls[0].Function.Name != "list_tasks" {
					t.Errorf("tool call name = %q", result[0].ToolCalls[0].Function.Name)
				}
				if result[0].ToolCalls[0].Function.Arguments != `{"completed":false}` {
					t.Errorf("tool call args = %q", result[0].ToolCalls[0].Function.Arguments)
				}
			},
		},
		{
			name: "each tool result becomes its own message",
			messages: []agent.CompletionMessage{
				{
					Role: "tool",
					ToolResults: []agent.ToolResult{
						{ToolCallID: "call_1", Content: `{"tasks":[]}`},
						{ToolCallID: "call_2", Content: `{"datetime":"2026-08-25T10:00:00Z"}`},
					},
				},
			},
			wantLen: 2,
			validate: func(t *testing.T, result []openai.ChatCompletionMessage) {
				for i, want := range []string{"call_1", "call_2"} {
					if result[i].Role != openai.ChatMessageRoleTool {
						t.Errorf("message %d role = %q, want tool", i, result[i].Role)
					}
					if result[i].ToolCallID != want {
						t.Errorf("message %d ToolCallID = %q, want %q", i, result[i].ToolCallID, want)
					}
				}
			},
		},
		{
			name: "system role in history passes through",
			messages: []agent.CompletionMessage{
				{Role: "system", Content: "Conversation resumed."},
				{Role: "user", Content: "Hi"},
			},
			wantLen: 2,
			validate: func(t *testing.T, result []openai.ChatCompletionMessage) {
				if result[0].Role != "system" {
					t.Errorf("first role = %q, want system", result[0].Role)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := provider.convertMessages(tt.messages, tt.system)
			if len(result) != tt.wantLen {
				t.Fatalf("got %d messages, want %d", len(result), tt.wantLen)
			}
			if tt.validate != nil {
				tt.validate(t, result)
			}
		})
	}
}

func TestOpenAIConvertTools(t *testing.T) {
	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	tools := []agent.Tool{
		&stubTool{
			name:        "create_task",
			description: "Create a new task",
			schema:      `{"type":"object","properties":{"title":{"type":"string"}}}`,
		},
		&stubTool{name: "broken", description: "Bad schema", schema: `{not json`},
	}

	result := provider.convertTools(tools)
	if len(result) != 2 {
		t.Fatalf("got %d tools, want 2", len(result))
	}
	if result[0].Type != openai.ToolTypeFunction {
		t.Errorf("tool type = %q", result[0].Type)
	}
	if result[0].Function.Name != "create_task" {
		t.Errorf("function name = %q", result[0].Function.Name)
	}

	// A broken schema degrades to an empty object schema.
	params, ok := result[1].Function.Parameters.(map[string]any)
	if !ok {
		t.Fatalf("parameters type = %T", result[1].Function.Parameters)
	}
	if params["type"] != "object" {
		t.Errorf("fallback schema type = %v", params["type"])
	}
}

func TestOpenAIFlushToolCalls(t *testing.T) {
	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	pending := map[int]*agent.ToolCall{
		1: {ID: "call_b", Name: "get_task", Input: json.RawMessage(`{"task_id":7}`)},
		0: {ID: "call_a", Name: "current_datetime"},
		2: {Name: "orphan_without_id"},
	}

	chunks := make(chan *agent.CompletionChunk, 4)
	provider.flushToolCalls(pending, chunks)
	close(chunks)

	var got []*agent.ToolCall
	for chunk := range chunks {
		if chunk.ToolCall != nil {
			got = append(got, chunk.ToolCall)
		}
	}

	if len(got) != 2 {
		t.Fatalf("got %d tool calls, want 2", len(got))
	}
	if got[0].ID != "call_a" || got[1].ID != "call_b" {
		t.Errorf("flush order = [%s, %s], want [call_a, call_b]", got[0].ID, got[1].ID)
	}
	if string(got[0].Input) != `{}` {
		t.Errorf("empty input normalized to %q, want {}", string(got[0].Input))
	}
	if string(got[1].Input) != `{"task_id":7}` {
		t.Errorf("input = %q", string(got[1].Input))
	}
}

func TestWrapOpenAIError(t *testing.T) {
	provider, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	if provider.wrapError(nil, "m") != nil {
		t.Error("expected nil for nil error")
	}

	already := NewProviderError("openai", "m", errors.New("x"))
	if got := provider.wrapError(already, "m"); got != already {
		t.Error("expected already-wrapped error to pass through")
	}

	apiErr := &openai.APIError{
		HTTPStatusCode: 429,
		Message:        "Rate limit reached",
		Code:           "rate_limit_error",
	}
	providerErr, ok := GetProviderError(provider.wrapError(apiErr, "gpt-4o"))
	if !ok {
		t.Fatal("expected ProviderError")
	}
	if providerErr.Status != 429 {
		t.Errorf("Status = %d, want 429", providerErr.Status)
	}
	if providerErr.Reason != FailoverRateLimit {
		t.Errorf("Reason = %v, want %v", providerErr.Reason, FailoverRateLimit)
	}
	if providerErr.Message != "Rate limit reached" {
		t.Errorf("Message = %q", providerErr.Message)
	}
	if providerErr.Code != "rate_limit_error" {
		t.Errorf("Code = %q", providerErr.Code)
	}

	reqErr := &openai.RequestError{
		HTTPStatusCode: 503,
		Err:            errors.New("service unavailable"),
	}
	providerErr, ok = GetProviderError(provider.wrapError(reqErr, "gpt-4o"))
	if !ok {
		t.Fatal("expected ProviderError")
	}
	if providerErr.Status != 503 {
		t.Errorf("Status = %d, want 503", providerErr.Status)
	}
	if providerErr.Reason != FailoverServerError {
		t.Errorf("Reason = %v, want %v", providerErr.Reason, FailoverServerError)
	}

	// A RequestError wrapping an APIError exposes the inner detail.
	nested := &openai.RequestError{
		HTTPStatusCode: 400,
		Err: &openai.APIError{
			HTTPStatusCode: 400,
			Message:        "Invalid model",
			Code:           "invalid_model",
		},
	}
	providerErr, ok = GetProviderError(provider.wrapError(nested, "gpt-4o"))
	if !ok {
		t.Fatal("expected ProviderError")
	}
	if providerErr.Message != "Invalid model" {
		t.Errorf("Message = %q, want Invalid model", providerErr.Message)
	}
	if providerErr.Code != "invalid_model" {
		t.Errorf("Code = %q", providerErr.Code)
	}
	if providerErr.Reason != FailoverInvalidRequest {
		t.Errorf("Reason = %v, want %v", providerErr.Reason, FailoverInvalidRequest)
	}

	providerErr, ok = GetProviderError(provider.wrapError(errors.New("connection refused"), "gpt-4o"))
	if !ok {
		t.Fatal("expected ProviderError")
	}
	if providerErr.Provider != "openai" {
		t.Errorf("Provider = %q", providerErr.Provider)
	}
}
