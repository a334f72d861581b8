package taskops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
	"github.com/haasonsaas/steward/pkg/models"
)

// CreateTool adds a new task for the authenticated user.
type CreateTool struct {
	client *taskapi.Client
}

// NewCreateTool returns a create_task tool backed by the given client.
func NewCreateTool(client *taskapi.Client) *CreateTool {
	return &CreateTool{client: client}
}

// Name implements agent.Tool.
func (t *CreateTool) Name() string { return "create_task" }

// Description implements agent.Tool.
func (t *CreateTool) Description() string {
	return "Create a new task, reminder, note, or todo item. Use this whenever the user asks to add, remember, or schedule something."
}

// Schema implements agent.Tool.
func (t *CreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {
			"type": "string",
			"description": "Short title of the task"
		},
		"description": {
			"type": "string",
			"description": "Optional longer description"
		},
		"priority": {
			"type": "string",
			"enum": ["low", "medium", "high"],
			"description": "Task priority, defaults to medium"
		},
		"tags": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Labels for grouping and filtering"
		},
		"due_date": {
			"type": "string",
			"description": "Due date as YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS"
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
	"required": ["title"],
	"additionalProperties": false
}`)
}

// CreateInput is the payload for create_task.
type CreateInput struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Priority          string   `json:"priority"`
	Tags              []string `json:"tags"`
	DueDate           string   `json:"due_date"`
	IsRecurring       bool     `json:"is_recurring"`
	RecurrencePattern string   `json:"recurrence_pattern"`
}

// Execute implements agent.Tool.
func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in CreateInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	create := taskapi.CreateTaskInput{
		Title:             in.Title,
		Description:       in.Description,
		Priority:          in.Priority,
		Tags:              in.Tags,
		IsRecurring:       in.IsRecurring,
		RecurrencePattern: in.RecurrencePattern,
	}
	if create.Priority == "" {
		create.Priority = models.PriorityMedium
	}
	if in.DueDate != "" {
		due, err := parseDueDate(in.DueDate)
		if err != nil {
			return agent.ErrorResult(models.KindValidationFailed,
				fmt.Sprintf("Invalid due_date format: %s. Use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", in.DueDate)), nil
		}
		create.DueDate = due
	}

	task, err := t.client.Create(ctx, create)
	if err != nil {
		return errorResult(err), nil
	}

	body, err := json.Marshal(viewOf(task))
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}
