package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/steward/pkg/models"
)

// fakeTool is a scriptable Tool for registry and loop tests.
type fakeTool struct {
	name    string
	schema  string
	execute func(ctx context.Context, params json.RawMessage) (*ToolResult, error)
	calls   int32
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool" }

func (f *fakeTool) Schema() json.RawMessage {
	if f.schema == "" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return json.RawMessage(f.schema)
}

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.execute != nil {
		return f.execute(ctx, params)
	}
	return &ToolResult{Content: `{"ok":true}`}, nil
}

func (f *fakeTool) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

const echoSchema = `{
	"type": "object",
	"properties": {
		"message": {"type": "string"}
	},
	"required": ["message"],
	"additionalProperties": false
}`

func TestRegistryExecuteValidCall(t *testing.T) {
	registry := NewRegistry()
	tool := &fakeTool{name: "echo", schema: echoSchema}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := registry.Execute(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got error result: %s", res.Content)
	}
	if tool.callCount() != 1 {
		t.Errorf("expected 1 tool call, got %d", tool.callCount())
	}
}

func TestRegistryRejectsUnknownTool(t *testing.T) {
	registry := NewRegistry()
	tool := &fakeTool{name: "echo", schema: echoSchema}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := registry.Execute(context.Background(), "drop_tables", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for unknown tool")
	}

	var payload struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("error result is not JSON: %v", err)
	}
	if payload.Type != string(models.KindValidationFailed) {
		t.Errorf("type = %q, want %q", payload.Type, models.KindValidationFailed)
	}
	if !strings.Contains(payload.Error, "drop_tables") {
		t.Errorf("error should name the rejected tool, got %q", payload.Error)
	}
	if tool.callCount() != 0 {
		t.Error("registered tool must not run for an unknown name")
	}
}

func TestRegistryValidatesArgumentsBeforeExecution(t *testing.T) {
	registry := NewRegistry()
	tool := &fakeTool{name: "echo", schema: echoSchema}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cases := []struct {
		name   string
		params string
	}{
		{"missing required field", `{}`},
		{"wrong type", `{"message": 42}`},
		{"unknown property", `{"message":"hi","user_id":"someone-else"}`},
		{"not json", `{"message":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := registry.Execute(context.Background(), "echo", json.RawMessage(tc.params))
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if !res.IsError {
				t.Fatal("expected error result")
			}
			var payload struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
				t.Fatalf("error result is not JSON: %v", err)
			}
			if payload.Type != string(models.KindValidationFailed) {
				t.Errorf("type = %q, want %q", payload.Type, models.KindValidationFailed)
			}
		})
	}

	if tool.callCount() != 0 {
		t.Errorf("tool ran %d times despite invalid arguments", tool.callCount())
	}
}

func TestRegistryEmptyParamsValidateAsEmptyObject(t *testing.T) {
	registry := NewRegistry()
	tool := &fakeTool{name: "noop", schema: `{"type":"object"}`}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res, err := registry.Execute(context.Background(), "noop", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got %s", res.Content)
	}
}

func TestRegistryRejectsOversizedParams(t *testing.T) {
	registry := NewRegistry()
	tool := &fakeTool{name: "echo", schema: echoSchema}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	big := `{"message":"` + strings.Repeat("x", MaxToolParamsSize) + `"}`
	res, err := registry.Execute(context.Background(), "echo", json.RawMessage(big))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for oversized params")
	}
	if tool.callCount() != 0 {
		t.Error("tool must not run for oversized params")
	}
}

func TestRegistryRegisterRejectsBadSchema(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(&fakeTool{name: "broken", schema: `{"type": []}`}); err == nil {
		t.Fatal("expected schema compile error")
	}
	if err := registry.Register(&fakeTool{name: ""}); err == nil {
		t.Fatal("expected error for empty tool name")
	}
}

func TestRegistryTools(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"alpha", "beta"} {
		if err := registry.Register(&fakeTool{name: name}); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	if got := len(registry.Tools()); got != 2 {
		t.Errorf("Tools() len = %d, want 2", got)
	}
	if _, ok := registry.Get("alpha"); !ok {
		t.Error("Get(alpha) not found")
	}
	if _, ok := registry.Get("gamma"); ok {
		t.Error("Get(gamma) should not be found")
	}

	names := registry.Names()
	if len(names) != 2 {
		t.Errorf("Names() len = %d, want 2", len(names))
	}
}

func TestErrorResultShape(t *testing.T) {
	res := ErrorResult(models.KindNotFound, "Task #7 not found. Please check the task ID.")
	if !res.IsError {
		t.Fatal("expected IsError")
	}

	var payload struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal([]byte(res.Content), &payload); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if payload.Type != "not_found" {
		t.Errorf("type = %q, want not_found", payload.Type)
	}
	if payload.Error == "" {
		t.Error("error message missing")
	}
}
