// Package taskops bridges model tool calls to the task service. Each tool is
// a stateless adapter over the taskapi client: arguments arrive as JSON the
// registry has already validated, the call runs with the identity carried in
// the request context, and the outcome is rendered as compact JSON the model
// reads on its next reasoning round.
//
// Failures never abort a turn. Task service errors come back as structured
// error results the model can act on, phrased for end users. The caller's
// identity is never part of any schema; it travels only through the context.
package taskops

import (
	"fmt"
	"time"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/taskapi"
	"github.com/haasonsaas/steward/pkg/models"
)

// Tools returns the full adapter set wired to one task service client.
func Tools(client *taskapi.Client) []agent.Tool {
	return []agent.Tool{
		NewCreateTool(client),
		NewListTool(client),
		NewGetTool(client),
		NewUpdateTool(client),
		NewDeleteTool(client),
		NewToggleTool(client),
		NewSearchTool(client),
		NewSystemDateTool(),
		NewRelativeDateTool(),
	}
}

// taskView is the task shape the model sees. Every field is always present
// so the model never has to guess whether an attribute exists.
type taskView struct {
	ID                int64    `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Completed         bool     `json:"completed"`
	Priority          string   `json:"priority"`
	Tags              []string `json:"tags"`
	DueDate           *string  `json:"due_date"`
	IsRecurring       bool     `json:"is_recurring"`
	RecurrencePattern *string  `json:"recurrence_pattern"`
	CreatedAt         *string  `json:"created_at"`
	UpdatedAt         *string  `json:"updated_at"`
}

const isoLayout = "2006-01-02T15:04:05"

func viewOf(t *models.Task) taskView {
	v := taskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		Priority:    t.Priority,
		Tags:        t.Tags,
		IsRecurring: t.IsRecurring,
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	if t.DueDate != nil {
		s := t.DueDate.Format(isoLayout)
		v.DueDate = &s
	}
	if t.RecurrencePattern != "" {
		p := t.RecurrencePattern
		v.RecurrencePattern = &p
	}
	if !t.CreatedAt.IsZero() {
		s := t.CreatedAt.Format(isoLayout)
		v.CreatedAt = &s
	}
	if t.UpdatedAt != nil {
		s := t.UpdatedAt.Format(isoLayout)
		v.UpdatedAt = &s
	}
	return v
}

func viewsOf(tasks []models.Task) []taskView {
	views := make([]taskView, len(tasks))
	for i := range tasks {
		views[i] = viewOf(&tasks[i])
	}
	return views
}

// errorResult maps a task service failure to a structured error result.
func errorResult(err error) *agent.ToolResult {
	if dom, ok := models.AsDomainError(err); ok {
		msg := dom.Message
		if msg == "" {
			msg = models.UserMessage(dom.Kind)
		}
		return agent.ErrorResult(dom.Kind, msg)
	}
	return agent.ErrorResult(models.KindInternalError, "The task service request failed. Please try again.")
}

// taskErrorResult is errorResult with the classic not-found phrasing that
// names the missing task.
func taskErrorResult(err error, taskID int64) *agent.ToolResult {
	if dom, ok := models.AsDomainError(err); ok && dom.Kind == models.KindNotFound {
		return agent.ErrorResult(dom.Kind, notFoundText(taskID))
	}
	return errorResult(err)
}

func notFoundText(taskID int64) string {
	return fmt.Sprintf("Task #%d not found. Please check the task ID.", taskID)
}

// parseDueDate accepts the ISO shapes the model is told to produce:
// YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS (an RFC3339 zone suffix is tolerated).
func parseDueDate(s string) (*time.Time, error) {
	for _, layout := range []string{isoLayout, "2006-01-02", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid due_date format: %s. Use YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS", s)
}
