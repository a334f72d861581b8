package taskops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
	"github.com/haasonsaas/steward/pkg/models"
)

// ListTool pages through the user's tasks with optional filters.
type ListTool struct {
	client *taskapi.Client
}

// NewListTool returns a list_tasks tool backed by the given client.
func NewListTool(client *taskapi.Client) *ListTool {
	return &ListTool{client: client}
}

// Name implements agent.Tool.
func (t *ListTool) Name() string { return "list_tasks" }

// Description implements agent.Tool.
func (t *ListTool) Description() string {
	return "List the user's tasks with optional filtering by status, priority, tags, or due date range. Returns one page plus a total count."
}

// Schema implements agent.Tool.
func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"status": {
			"type": "string",
			"enum": ["completed", "incomplete"],
			"description": "Only tasks in this completion state"
		},
		"priority": {
			"type": "string",
			"enum": ["low", "medium", "high"],
			"description": "Only tasks with this priority"
		},
		"tags": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Only tasks carrying all of these tags"
		},
		"due_date_start": {
			"type": "string",
			"description": "Only tasks due on or after this date (YYYY-MM-DD)"
		},
		"due_date_end": {
			"type": "string",
			"description": "Only tasks due on or before this date (YYYY-MM-DD)"
		},
		"sort_by": {
			"type": "string",
			"enum": ["created_at", "due_date", "priority", "title"],
			"description": "Sort field, defaults to created_at"
		},
		"sort_order": {
			"type": "string",
			"enum": ["asc", "desc"],
			"description": "Sort direction, defaults to desc"
		},
		"limit": {
			"type": "integer",
			"description": "Maximum tasks to return, defaults to 50, capped at 100"
		},
		"offset": {
			"type": "integer",
			"description": "Tasks to skip for pagination"
		}
	},
	"additionalProperties": false
}`)
}

// ListInput is the payload for list_tasks.
type ListInput struct {
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	Tags         []string `json:"tags"`
	DueDateStart string   `json:"due_date_start"`
	DueDateEnd   string   `json:"due_date_end"`
	SortBy       string   `json:"sort_by"`
	SortOrder    string   `json:"sort_order"`
	Limit        int      `json:"limit"`
	Offset       int      `json:"offset"`
}

// listPage mirrors the page shape the model is prompted to expect.
type listPage struct {
	Tasks  []taskView `json:"tasks"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Execute implements agent.Tool.
func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in ListInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	filter := taskapi.ListFilter{
		Priority:  in.Priority,
		Tags:      in.Tags,
		SortBy:    in.SortBy,
		SortOrder: in.SortOrder,
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	switch in.Status {
	case "completed":
		done := true
		filter.Completed = &done
	case "incomplete":
		done := false
		filter.Completed = &done
	}
	if in.DueDateStart != "" {
		start, err := parseDueDate(in.DueDateStart)
		if err != nil {
			return agent.ErrorResult(models.KindValidationFailed,
				fmt.Sprintf("Invalid due_date_start format: %s. Use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", in.DueDateStart)), nil
		}
		filter.DueAfter = start
	}
	if in.DueDateEnd != "" {
		end, err := parseDueDate(in.DueDateEnd)
		if err != nil {
			return agent.ErrorResult(models.KindValidationFailed,
				fmt.Sprintf("Invalid due_date_end format: %s. Use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", in.DueDateEnd)), nil
		}
		filter.DueBefore = end
	}

	tasks, err := t.client.List(ctx, filter)
	if err != nil {
		return errorResult(err), nil
	}

	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}
	page := listPage{
		Tasks:  viewsOf(tasks),
		Total:  len(tasks),
		Limit:  limit,
		Offset: in.Offset,
	}
	body, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}
