package taskops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
)

// ToggleTool sets a task's completion state. The tool takes the desired
// state rather than blindly flipping: marking a completed task "completed"
// again is a no-op, which keeps repeated user requests idempotent.
type ToggleTool struct {
	client *taskapi.Client
}

// NewToggleTool returns a toggle_task_completion tool backed by the given client.
func NewToggleTool(client *taskapi.Client) *ToggleTool {
	return &ToggleTool{client: client}
}

// Name implements agent.Tool.
func (t *ToggleTool) Name() string { return "toggle_task_completion" }

// Description implements agent.Tool.
func (t *ToggleTool) Description() string {
	return "Mark a task as completed or incomplete. Supply the desired final state; if the task is already in that state nothing changes."
}

// Schema implements agent.Tool.
func (t *ToggleTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_id": {
			"type": "integer",
			"description": "ID of the task to change"
		},
		"completed": {
			"type": "boolean",
			"description": "Desired completion state: true for done, false for not done"
		}
	},
	"required": ["task_id", "completed"],
	"additionalProperties": false
}`)
}

// ToggleInput is the payload for toggle_task_completion.
type ToggleInput struct {
	TaskID    int64 `json:"task_id"`
	Completed bool  `json:"completed"`
}

// Execute implements agent.Tool.
func (t *ToggleTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in ToggleInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	task, err := t.client.Get(ctx, in.TaskID)
	if err != nil {
		return taskErrorResult(err, in.TaskID), nil
	}
	if task.Completed != in.Completed {
		task, err = t.client.Toggle(ctx, in.TaskID)
		if err != nil {
			return taskErrorResult(err, in.TaskID), nil
		}
	}

	body, err := json.Marshal(viewOf(task))
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}
