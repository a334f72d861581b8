package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/steward/pkg/models"
)

// Parameter limits applied before any tool runs.
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool argument JSON (1MB).
	MaxToolParamsSize = 1 << 20
)

type registeredTool struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry manages the closed set of tools the model may invoke.
//
// Dispatch is strict: a name that was never registered is rejected rather
// than matched loosely, and arguments are validated against the tool's
// compiled schema before the tool runs.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds a tool, compiling its parameter schema. A tool with the same
// name replaces the previous registration.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" || len(name) > MaxToolNameLength {
		return fmt.Errorf("invalid tool name %q", name)
	}
	schema, err := jsonschema.CompileString(name+".schema.json", string(tool.Schema()))
	if err != nil {
		return fmt.Errorf("compile schema for tool %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = registeredTool{tool: tool, schema: schema}
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	return rt.tool, ok
}

// Names returns the registered tool names, for logging and startup output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Tools returns all registered tools for passing to a provider.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, rt := range r.tools {
		tools = append(tools, rt.tool)
	}
	return tools
}

// Execute runs a tool by name with the given JSON arguments.
//
// Unknown names, oversized payloads, and schema violations all come back as
// error results rather than hard errors so the model can read the failure
// and correct its next call. A non-nil error is reserved for the tool itself
// failing in a way the model cannot act on.
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return ErrorResult(models.KindValidationFailed, fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)), nil
	}
	if len(params) > MaxToolParamsSize {
		return ErrorResult(models.KindValidationFailed, fmt.Sprintf("tool arguments exceed maximum size of %d bytes", MaxToolParamsSize)), nil
	}

	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ErrorResult(models.KindValidationFailed, "unknown tool: "+name), nil
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return ErrorResult(models.KindValidationFailed, "tool arguments are not valid JSON: "+err.Error()), nil
	}
	if err := rt.schema.Validate(decoded); err != nil {
		return ErrorResult(models.KindValidationFailed, "invalid arguments for "+name+": "+err.Error()), nil
	}

	return rt.tool.Execute(ctx, params)
}

// ErrorResult renders a structured error the model can read: a JSON object
// with the message and the taxonomy kind.
func ErrorResult(kind models.ErrorKind, message string) *ToolResult {
	payload, err := json.Marshal(map[string]string{
		"error": message,
		"type":  string(kind),
	})
	if err != nil {
		payload = []byte(`{"error":"internal error","type":"internal_error"}`)
	}
	return &ToolResult{Content: string(payload), IsError: true}
}
