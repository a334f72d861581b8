package taskops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
)

// SearchTool runs a keyword search over task titles and descriptions.
type SearchTool struct {
	client *taskapi.Client
}

// NewSearchTool returns a search_tasks tool backed by the given client.
func NewSearchTool(client *taskapi.Client) *SearchTool {
	return &SearchTool{client: client}
}

// Name implements agent.Tool.
func (t *SearchTool) Name() string { return "search_tasks" }

// Description implements agent.Tool.
func (t *SearchTool) Description() string {
	return "Search tasks by keyword across titles and descriptions, with optional priority, tag, and status filters."
}

// Schema implements agent.Tool.
func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"query": {
			"type": "string",
			"description": "Keyword or phrase to search for"
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
		"status": {
			"type": "string",
			"enum": ["completed", "incomplete"],
			"description": "Only tasks in this completion state"
		},
		"sort_by": {
			"type": "string",
			"enum": ["created_at", "due_date", "priority", "title"],
			"description": "Sort field, defaults to relevance"
		},
		"sort_order": {
			"type": "string",
			"enum": ["asc", "desc"],
			"description": "Sort direction"
		},
		"limit": {
			"type": "integer",
			"description": "Maximum tasks to return, defaults to 50, capped at 100"
		}
	},
	"required": ["query"],
	"additionalProperties": false
}`)
}

// SearchInput is the payload for search_tasks.
type SearchInput struct {
	Query     string   `json:"query"`
	Priority  string   `json:"priority"`
	Tags      []string `json:"tags"`
	Status    string   `json:"status"`
	SortBy    string   `json:"sort_by"`
	SortOrder string   `json:"sort_order"`
	Limit     int      `json:"limit"`
}

// searchPage mirrors the search response shape the model expects.
type searchPage struct {
	Tasks []taskView `json:"tasks"`
	Total int        `json:"total"`
	Query string     `json:"query"`
}

// Execute implements agent.Tool.
func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in SearchInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	query := taskapi.SearchQuery{
		Query:     in.Query,
		Priority:  in.Priority,
		Tags:      in.Tags,
		SortBy:    in.SortBy,
		SortOrder: in.SortOrder,
		Limit:     in.Limit,
	}
	switch in.Status {
	case "completed":
		done := true
		query.Completed = &done
	case "incomplete":
		done := false
		query.Completed = &done
	}

	result, err := t.client.Search(ctx, query)
	if err != nil {
		return errorResult(err), nil
	}

	page := searchPage{
		Tasks: viewsOf(result.Tasks),
		Total: result.Total,
		Query: result.Query,
	}
	body, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}
