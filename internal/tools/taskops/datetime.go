package taskops

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/steward/internal/agent"
)

// The model's notion of "now" is frozen at training time, so date math is
// delegated to these two tools. Both compute locally from the system clock
// and make no network calls.

const (
	readableLayout     = "Monday, January 02, 2006"
	readableTimeLayout = "Monday, January 02, 2006 at 03:04 PM"
)

var (
	relativeUnitRe = regexp.MustCompile(`in\s+(\d+)\s+(day|week|month|year)`)
	clockRe        = regexp.MustCompile(`(?i)at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// SystemDateTool reports the current system date and time.
type SystemDateTool struct {
	now func() time.Time
}

// NewSystemDateTool returns a current_datetime tool on the system clock.
func NewSystemDateTool() *SystemDateTool {
	return &SystemDateTool{now: time.Now}
}

// Name implements agent.Tool.
func (t *SystemDateTool) Name() string { return "current_datetime" }

// Description implements agent.Tool.
func (t *SystemDateTool) Description() string {
	return "Get the current system date and time. Use this instead of guessing the date; your built-in sense of the current date is unreliable."
}

// Schema implements agent.Tool.
func (t *SystemDateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {},
	"additionalProperties": false
}`)
}

type systemDateTime struct {
	ISOFormat      string `json:"iso_format"`
	DateOnly       string `json:"date_only"`
	ReadableFormat string `json:"readable_format"`
	Timestamp      int64  `json:"timestamp"`
	TimezoneInfo   string `json:"timezone_info"`
}

// Execute implements agent.Tool.
func (t *SystemDateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	now := t.now()
	zone, _ := now.Zone()

	body, err := json.Marshal(systemDateTime{
		ISOFormat:      now.Format(isoLayout),
		DateOnly:       now.Format("2006-01-02"),
		ReadableFormat: now.Format(readableTimeLayout),
		Timestamp:      now.Unix(),
		TimezoneInfo:   zone,
	})
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}

// RelativeDateTool resolves natural-language date expressions against the
// system clock.
type RelativeDateTool struct {
	now func() time.Time
}

// NewRelativeDateTool returns a relative_date tool on the system clock.
func NewRelativeDateTool() *RelativeDateTool {
	return &RelativeDateTool{now: time.Now}
}

// Name implements agent.Tool.
func (t *RelativeDateTool) Name() string { return "relative_date" }

// Description implements agent.Tool.
func (t *RelativeDateTool) Description() string {
	return "Resolve a relative date expression like \"tomorrow\", \"next week\", \"in 3 days\", or \"tomorrow at 2 PM\" to a concrete date. An unrecognized expression resolves to today."
}

// Schema implements agent.Tool.
func (t *RelativeDateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
	"type": "object",
	"properties": {
		"target": {
			"type": "string",
			"description": "The relative expression to resolve, e.g. \"day after tomorrow\" or \"in 2 weeks at 9am\""
		}
	},
	"required": ["target"],
	"additionalProperties": false
}`)
}

// RelativeDateInput is the payload for relative_date.
type RelativeDateInput struct {
	Target string `json:"target"`
}

type relativeDate struct {
	ISOFormat      string `json:"iso_format"`
	DateOnly       string `json:"date_only"`
	ReadableFormat string `json:"readable_format"`
	TimePortion    string `json:"time_portion"`
}

// Execute implements agent.Tool.
func (t *RelativeDateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var in RelativeDateInput
	if err := json.Unmarshal(params, &in); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	body, err := json.Marshal(resolveRelative(t.now(), in.Target))
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &agent.ToolResult{Content: string(body)}, nil
}

// resolveRelative turns one relative expression into a concrete local date,
// optionally carrying a clock time the expression named ("at 5pm").
func resolveRelative(now time.Time, target string) relativeDate {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	date := resolveDate(today, strings.ToLower(strings.TrimSpace(target)))

	hour, minute, hasTime := extractClock(target)
	result := relativeDate{
		DateOnly:    date.Format("2006-01-02"),
		TimePortion: fmt.Sprintf("%02d:%02d", hour, minute),
	}
	if hasTime {
		at := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
		result.ISOFormat = at.Format(isoLayout)
		result.ReadableFormat = at.Format(readableTimeLayout)
	} else {
		result.ISOFormat = date.Format(isoLayout)
		result.ReadableFormat = date.Format(readableLayout)
	}
	return result
}

// resolveDate matches the expression against the supported forms. "day after
// tomorrow" is checked before "tomorrow" because the latter is a substring
// of the former.
func resolveDate(today time.Time, target string) time.Time {
	switch {
	case strings.Contains(target, "day after tomorrow"), strings.Contains(target, "day after now"):
		return today.AddDate(0, 0, 2)
	case strings.Contains(target, "tomorrow"):
		return today.AddDate(0, 0, 1)
	case strings.Contains(target, "yesterday"):
		return today.AddDate(0, 0, -1)
	case strings.Contains(target, "today"), strings.Contains(target, "now"):
		return today
	case strings.Contains(target, "next week"):
		return today.AddDate(0, 0, daysUntilNextMonday(today))
	case strings.Contains(target, "next month"):
		if today.Month() == time.December {
			return time.Date(today.Year()+1, time.January, 1, 0, 0, 0, 0, today.Location())
		}
		return time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, today.Location())
	case strings.Contains(target, "next year"):
		return time.Date(today.Year()+1, time.January, 1, 0, 0, 0, 0, today.Location())
	}

	if m := relativeUnitRe.FindStringSubmatch(target); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			switch m[2] {
			case "day":
				return today.AddDate(0, 0, n)
			case "week":
				return today.AddDate(0, 0, 7*n)
			case "month":
				return addMonthsClamped(today, n)
			case "year":
				return addYearsClamped(today, n)
			}
		}
	}
	return today
}

// daysUntilNextMonday counts forward to the coming Monday; on a Monday the
// answer is a full week, never zero.
func daysUntilNextMonday(today time.Time) int {
	sinceMonday := (int(today.Weekday()) + 6) % 7
	return 7 - sinceMonday
}

// addMonthsClamped advances n months keeping the day of month, clamping to
// the target month's last day (Jan 31 + 1 month = Feb 28, not Mar 3).
func addMonthsClamped(today time.Time, n int) time.Time {
	month := int(today.Month()) + n
	year := today.Year() + (month-1)/12
	month = (month-1)%12 + 1

	day := today.Day()
	if last := daysIn(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location())
}

// addYearsClamped advances n years; Feb 29 lands on Feb 28 in non-leap years.
func addYearsClamped(today time.Time, n int) time.Time {
	year := today.Year() + n
	day := today.Day()
	if last := daysIn(year, today.Month()); day > last {
		day = last
	}
	return time.Date(year, today.Month(), day, 0, 0, 0, 0, today.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// extractClock pulls an "at H[:MM] [am|pm]" clause out of the expression.
func extractClock(target string) (hour, minute int, ok bool) {
	m := clockRe.FindStringSubmatch(target)
	if m == nil {
		return 0, 0, false
	}

	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}

	if hour > 23 {
		hour = 23
	}
	if minute > 59 {
		minute = 59
	}
	return hour, minute, true
}
