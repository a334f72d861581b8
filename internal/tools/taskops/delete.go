package taskops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
)

// DeleteTool permanently removes one task.
type DeleteTool struct {
	client *taskapi.Client
}

// NewDeleteTool returns a delete_task tool backed by the given client.
func NewDeleteTool(client *taskapi.Client) *DeleteTool {
	return &DeleteTool{client: client}
}

// Name implements agent.Tool.
func (t *DeleteTool) Name() string { return "delete_task" }

// Description implements agent.Tool.
func (t *DeleteTool) Description() string {
	return "Delete a task permanently. This cannot be undone, so confirm with the user before deleting unless they were explicit."
}

// Schema implements agent.Tool.
func (t *DeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_id": {
			"type": "integer",
			"description": "ID of the task to delete"
		}
	},
	"required": ["task_id"],
	"additionalProperties": false
}`)
}

// DeleteInput is the payload for delete_task.
type DeleteInput struct {
	TaskID int64 `json:"task_id"`
}

// Execute implements agent.Tool.
func (t *DeleteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in DeleteInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	if err := t.client.Delete(ctx, in.TaskID); err != nil {
		return taskErrorResult(err, in.TaskID), nil
	}

	body, err := json.Marshal(map[string]string{
		"message": fmt.Sprintf("Task #%d deleted successfully", in.TaskID),
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}
