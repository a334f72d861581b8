package taskops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
)

// GetTool fetches one task by ID.
type GetTool struct {
	client *taskapi.Client
}

// NewGetTool returns a get_task tool backed by the given client.
func NewGetTool(client *taskapi.Client) *GetTool {
	return &GetTool{client: client}
}

// Name implements agent.Tool.
func (t *GetTool) Name() string { return "get_task" }

// Description implements agent.Tool.
func (t *GetTool) Description() string {
	return "Get the full details of a single task by its ID."
}

// Schema implements agent.Tool.
func (t *GetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_id": {
			"type": "integer",
			"description": "ID of the task to fetch"
		}
	},
	"required": ["task_id"],
	"additionalProperties": false
}`)
}

// GetInput is the payload for get_task.
type GetInput struct {
	TaskID int64 `json:"task_id"`
}

// Execute implements agent.Tool.
func (t *GetTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in GetInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	task, err := t.client.Get(ctx, in.TaskID)
	if err != nil {
		return taskErrorResult(err, in.TaskID), nil
	}

	body, err := json.Marshal(viewOf(task))
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}
