package taskops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
	"github.com/haasonsaas/steward/pkg/models"
)

// UpdateTool applies a partial update to one task. Only the fields the
// model supplies change; everything else keeps its stored value.
type UpdateTool struct {
	client *taskapi.Client
}

// NewUpdateTool returns an update_task tool backed by the given client.
func NewUpdateTool(client *taskapi.Client) *UpdateTool {
	return &UpdateTool{client: client}
}

// Name implements agent.Tool.
func (t *UpdateTool) Name() string { return "update_task" }

// Description implements agent.Tool.
func (t *UpdateTool) Description() string {
	return "Update fields of an existing task. Only the fields provided are changed; omitted fields keep their current values."
}

// Schema implements agent.Tool.
func (t *UpdateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"task_id": {
			"type": "integer",
			"description": "ID of the task to update"
		},
		"title": {
			"type": "string",
			"description": "New title"
		},
		"description": {
			"type": "string",
			"description": "New description"
		},
		"priority": {
			"type": "string",
			"enum": ["low", "medium", "high"],
			"description": "New priority"
		},
		"tags": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Replacement tag list"
		},
		"due_date": {
			"type": "string",
			"description": "New due date as YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"
		},
		"is_recurring": {
			"type": "boolean",
			"description": "Whether the task repeats"
		},
		"recurrence_pattern": {
			"type": "string",
			"enum": ["daily", "weekly", "monthly", "yearly"],
			"description": "How often a recurring task repeats"
		}
	},
	"required": ["task_id"],
	"additionalProperties": false
}`)
}

// UpdateInput is the payload for update_task. Pointer fields distinguish
// "not provided" from zero values.
type UpdateInput struct {
	TaskID            int64    `json:"task_id"`
	Title             *string  `json:"title"`
	Description       *string  `json:"description"`
	Priority          *string  `json:"priority"`
	Tags              []string `json:"tags"`
	DueDate           *string  `json:"due_date"`
	IsRecurring       *bool    `json:"is_recurring"`
	RecurrencePattern *string  `json:"recurrence_pattern"`
}

// Execute implements agent.Tool.
func (t *UpdateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in UpdateInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	update := taskapi.UpdateTaskInput{
		Title:             in.Title,
		Description:       in.Description,
		Priority:          in.Priority,
		Tags:              in.Tags,
		IsRecurring:       in.IsRecurring,
		RecurrencePattern: in.RecurrencePattern,
	}
	if in.DueDate != nil {
		due, err := parseDueDate(*in.DueDate)
		if err != nil {
			return agent.ErrorResult(models.KindValidationFailed,
				fmt.Sprintf("Invalid due_date format: %s. Use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", *in.DueDate)), nil
		}
		update.DueDate = due
	}

	task, err := t.client.Update(ctx, in.TaskID, update)
	if err != nil {
		return taskErrorResult(err, in.TaskID), nil
	}

	body, err := json.Marshal(viewOf(task))
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}
