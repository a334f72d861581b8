// Package stream encodes turn events as server-sent events.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/pkg/models"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush,
// which SSE requires.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// SSEWriter writes named event frames to an HTTP response. Each frame is
// flushed as it is written so deltas reach the client immediately.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for event streaming and sets the SSE headers. The
// X-Accel-Buffering header keeps nginx-style proxies from buffering frames.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent emits one frame and flushes it.
func (s *SSEWriter) WriteEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s event: %w", name, err)
	}
	s.flusher.Flush()
	return nil
}

// Wire payload shapes. Event names on the wire match the TurnEvent kinds.
type messageStartPayload struct {
	ConversationID int64 `json:"conversation_id"`
}

type contentDeltaPayload struct {
	Content string `json:"content"`
}

type toolCallStartPayload struct {
	ToolName string `json:"tool_name"`
}

type toolCallArgsPayload struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolCallResultPayload struct {
	ToolName string          `json:"tool_name"`
	Result   json.RawMessage `json:"result"`
}

type messageEndPayload struct {
	Content   string                  `json:"content"`
	ToolCalls []models.ToolInvocation `json:"tool_calls"`
}

type errorPayload struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

// Encode relays turn events to the client one frame per event. It returns
// when the channel closes, or early when the client disconnects (context
// done or a write fails); the orchestrator keeps running and persists the
// turn either way.
func (s *SSEWriter) Encode(ctx context.Context, events <-chan agent.TurnEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.writeTurnEvent(event); err != nil {
				return err
			}
		}
	}
}

func (s *SSEWriter) writeTurnEvent(event agent.TurnEvent) error {
	switch event.Kind {
	case agent.EventMessageStart:
		return s.WriteEvent("message_start", messageStartPayload{
			ConversationID: event.ConversationID,
		})
	case agent.EventContentDelta:
		return s.WriteEvent("content_delta", contentDeltaPayload{
			Content: event.Content,
		})
	case agent.EventToolCallStart:
		return s.WriteEvent("tool_call_start", toolCallStartPayload{
			ToolName: event.ToolName,
		})
	case agent.EventToolCallArgs:
		return s.WriteEvent("tool_call_args", toolCallArgsPayload{
			ToolName:  event.ToolName,
			Arguments: event.Arguments,
		})
	case agent.EventToolCallResult:
		return s.WriteEvent("tool_call_result", toolCallResultPayload{
			ToolName: event.ToolName,
			Result:   event.Result,
		})
	case agent.EventMessageEnd:
		calls := event.ToolCalls
		if calls == nil {
			calls = []models.ToolInvocation{}
		}
		return s.WriteEvent("message_end", messageEndPayload{
			Content:   event.Content,
			ToolCalls: calls,
		})
	case agent.EventError:
		return s.WriteEvent("error", errorPayload{
			Error: event.ErrorMessage,
			Type:  string(event.ErrorKind),
		})
	default:
		// Unknown kinds are skipped so the stream stays parseable.
		return nil
	}
}
