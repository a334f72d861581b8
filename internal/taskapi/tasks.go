package taskapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/steward/pkg/models"
)

// MaxPageSize is the largest page the task service serves.
const MaxPageSize = 100

// CreateTaskInput is the payload for Create.
type CreateTaskInput struct {
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Priority          string     `json:"priority,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	IsRecurring       bool       `json:"is_recurring,omitempty"`
	RecurrencePattern string     `json:"recurrence_pattern,omitempty"`
}

// UpdateTaskInput is the payload for Update. Nil fields are left unchanged.
type UpdateTaskInput struct {
	Title             *string    `json:"title,omitempty"`
	Description       *string    `json:"description,omitempty"`
	Priority          *string    `json:"priority,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	IsRecurring       *bool      `json:"is_recurring,omitempty"`
	RecurrencePattern *string    `json:"recurrence_pattern,omitempty"`
}

// ListFilter narrows and orders a task listing.
type ListFilter struct {
	Completed *bool
	Priority  string
	Tags      []string
	DueAfter  *time.Time
	DueBefore *time.Time
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// SearchQuery is a keyword search over titles and descriptions.
type SearchQuery struct {
	Query     string
	Priority  string
	Tags      []string
	Completed *bool
	SortBy    string
	SortOrder string
	Limit     int
}

// SearchResult is the search endpoint's response shape.
type SearchResult struct {
	Tasks []models.Task `json:"tasks"`
	Total int           `json:"total"`
	Query string        `json:"query"`
}

// Create adds a task for the authenticated user.
func (c *Client) Create(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, models.NewDomainError(models.KindValidationFailed, "A task needs a title.")
	}

	var task models.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks/", nil, in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns one page of the user's tasks.
func (c *Client) List(ctx context.Context, filter ListFilter) ([]models.Task, error) {
	query := map[string]string{}
	if filter.Completed != nil {
		query["completed"] = strconv.FormatBool(*filter.Completed)
	}
	if filter.Priority != "" {
		query["priority"] = filter.Priority
	}
	if len(filter.Tags) > 0 {
		query["tags"] = strings.Join(filter.Tags, ",")
	}
	if filter.DueAfter != nil {
		query["due_date_start"] = filter.DueAfter.Format(time.RFC3339)
	}
	if filter.DueBefore != nil {
		query["due_date_end"] = filter.DueBefore.Format(time.RFC3339)
	}
	if filter.SortBy != "" {
		query["sort_by"] = filter.SortBy
	}
	if filter.SortOrder != "" {
		query["sort_order"] = filter.SortOrder
	}
	query["limit"] = strconv.Itoa(clampPage(filter.Limit))
	if filter.Offset > 0 {
		query["offset"] = strconv.Itoa(filter.Offset)
	}

	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks/", query, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Get fetches one task by ID.
func (c *Client) Get(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id), nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update applies a partial update to one task.
func (c *Client) Update(ctx context.Context, id int64, in UpdateTaskInput) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPatch, taskPath(id), nil, in, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Delete removes one task permanently.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil, nil)
}

// Toggle flips a task's completion state and returns the updated task.
func (c *Client) Toggle(ctx context.Context, id int64) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodPost, taskPath(id)+"/toggle", nil, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Search runs a keyword search over the user's tasks.
func (c *Client) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if strings.TrimSpace(q.Query) == "" {
		return nil, models.NewDomainError(models.KindValidationFailed, "Search needs a keyword.")
	}

	query := map[string]string{
		"query": q.Query,
		"limit": strconv.Itoa(clampPage(q.Limit)),
	}
	if q.Priority != "" {
		query["priority"] = q.Priority
	}
	if len(q.Tags) > 0 {
		query["tags"] = strings.Join(q.Tags, ",")
	}
	if q.Completed != nil {
		query["completed"] = strconv.FormatBool(*q.Completed)
	}
	if q.SortBy != "" {
		query["sort_by"] = q.SortBy
	}
	if q.SortOrder != "" {
		query["sort_order"] = q.SortOrder
	}

	var result SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/tasks/search", query, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func taskPath(id int64) string {
	return fmt.Sprintf("/api/tasks/%d", id)
}

func clampPage(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
