package agent

import (
	"encoding/json"
	"strconv"

	"github.com/haasonsaas/steward/pkg/models"
)

// EventKind identifies one variant of the turn event union.
type EventKind string

const (
	// EventMessageStart opens a turn and carries the conversation ID.
	EventMessageStart EventKind = "message_start"

	// EventContentDelta carries an incremental slice of response text.
	EventContentDelta EventKind = "content_delta"

	// EventToolCallStart announces that the model requested a tool.
	EventToolCallStart EventKind = "tool_call_start"

	// EventToolCallArgs carries the full arguments of a tool call.
	EventToolCallArgs EventKind = "tool_call_args"

	// EventToolCallResult carries the outcome of an executed tool call.
	EventToolCallResult EventKind = "tool_call_result"

	// EventMessageEnd closes a successful turn with the full response.
	EventMessageEnd EventKind = "message_end"

	// EventError terminates a turn. Always the last event when present.
	EventError EventKind = "error"
)

// TurnEvent is one element of a turn's event stream. Exactly the fields for
// the event's Kind are populated; consumers switch on Kind and ignore the
// rest.
type TurnEvent struct {
	Kind EventKind

	// ConversationID is set on message_start.
	ConversationID int64

	// Content is the text delta on content_delta and the complete response
	// on message_end.
	Content string

	// ToolName is set on the three tool_call_* events.
	ToolName string

	// Arguments is set on tool_call_args.
	Arguments json.RawMessage

	// Result is set on tool_call_result. Always valid JSON.
	Result json.RawMessage

	// ToolCalls is the ordered invocation record, set on message_end.
	ToolCalls []models.ToolInvocation

	// ErrorKind and ErrorMessage are set on error events. ErrorMessage is
	// already safe to show a user.
	ErrorKind    models.ErrorKind
	ErrorMessage string
}

// rawResult normalizes tool output for the wire: tool content is expected to
// be compact JSON already, but anything else is quoted so the frame stays
// parseable.
func rawResult(content string) json.RawMessage {
	trimmed := []byte(content)
	if json.Valid(trimmed) && len(trimmed) > 0 {
		return trimmed
	}
	return json.RawMessage(strconv.Quote(content))
}
