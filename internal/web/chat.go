package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/haasonsaas/steward/internal/agent"
	"github.com/haasonsaas/steward/internal/auth"
	"github.com/haasonsaas/steward/internal/conversations"
	"github.com/haasonsaas/steward/internal/stream"
	"github.com/haasonsaas/steward/internal/validate"
	"github.com/haasonsaas/steward/pkg/models"
)

// maxRequestBody bounds chat request bodies. Far above any configurable
// message cap; it only guards against garbage payloads.
const maxRequestBody = 1 << 20

// chatRequest is the body of POST /api/chat and POST /api/chat/stream. The
// stream field is accepted for compatibility and ignored; the endpoint
// chooses the response mode.
type chatRequest struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

// chatResponse is the collected reply of a non-streaming turn.
type chatResponse struct {
	Response       string                  `json:"response"`
	ConversationID int64                   `json:"conversation_id"`
	ToolCalls      []models.ToolInvocation `json:"tool_calls"`
}

// conversationListResponse is one page of a user's conversations.
type conversationListResponse struct {
	Conversations []*models.Conversation `json:"conversations"`
	Total         int                    `json:"total"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}

// handleChat handles POST /api/chat: runs one turn to completion and returns
// the collected response.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	events, conv, ok := h.startTurn(w, r)
	if !ok {
		return
	}

	resp := chatResponse{
		ConversationID: conv.ID,
		ToolCalls:      []models.ToolInvocation{},
	}
	var turnErr error
	for event := range events {
		switch event.Kind {
		case agent.EventMessageEnd:
			resp.Response = event.Content
			if event.ToolCalls != nil {
				resp.ToolCalls = event.ToolCalls
			}
		case agent.EventError:
			turnErr = models.NewDomainError(event.ErrorKind, event.ErrorMessage)
		}
	}
	if turnErr != nil {
		writeError(w, turnErr)
		return
	}

	h.jsonResponse(w, resp)
}

// handleChatStream handles POST /api/chat/stream: the same turn, relayed as
// server-sent events. Failures before the first frame are plain JSON errors;
// once the stream is open, failures arrive as error frames.
func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	events, _, ok := h.startTurn(w, r)
	if !ok {
		return
	}

	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		writeError(w, models.NewDomainError(models.KindInternalError,
			"Streaming is not supported on this connection.").WithCause(err))
		return
	}

	if err := sse.Encode(r.Context(), events); err != nil {
		// Client gone. The loop stops at its next context check and
		// persists whatever partial output it produced.
		h.config.Logger.Debug("chat stream ended early", "error", err)
	}
}

// handleConversationList handles GET /api/chat/conversations.
func (h *Handler) handleConversationList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, models.NewDomainError(models.KindAuthInvalid, "Authentication required."))
		return
	}

	limit, offset := conversations.ClampListPage(
		parseIntParam(r, "limit", conversations.DefaultListLimit),
		parseIntParam(r, "offset", 0),
	)

	convs, total, err := h.config.Store.ListConversations(r.Context(), identity.UserID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []*models.Conversation{}
	}

	h.jsonResponse(w, conversationListResponse{
		Conversations: convs,
		Total:         total,
		Limit:         limit,
		Offset:        offset,
	})
}

// startTurn runs the shared front half of both chat endpoints: quota check,
// request decoding, message validation, conversation resolution, and kicking
// off the turn. On any failure it writes the error response and reports
// ok=false.
func (h *Handler) startTurn(w http.ResponseWriter, r *http.Request) (<-chan agent.TurnEvent, *models.Conversation, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, models.NewDomainError(models.KindAuthInvalid, "Authentication required."))
		return nil, nil, false
	}

	if h.config.Limiter != nil {
		decision := h.config.Limiter.Allow(identity.UserID)
		if !decision.Allowed {
			window := "hour"
			if decision.RemainingMinute <= 0 {
				window = "minute"
			}
			h.config.Metrics.RecordRateLimitRejection(window)
			writeError(w, models.NewDomainError(models.KindRateLimited, "").
				WithRetryAfter(decision.RetryAfter))
			return nil, nil, false
		}
	}

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, models.NewDomainError(models.KindValidationFailed,
			"Request body must be valid JSON.").WithCause(err))
		return nil, nil, false
	}

	message, err := validate.MessageWithMax(req.Message, h.config.MaxMessageLen)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}

	conv, err := h.resolveConversation(r.Context(), identity, req.ConversationID)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}

	events, err := h.config.Runner.Run(r.Context(), identity, conv, message)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	return events, conv, true
}

// resolveConversation loads and authorizes the referenced conversation, or
// creates a fresh one when the request names none. A conversation owned by
// someone else reads exactly like a missing one, so callers cannot probe for
// other users' conversation IDs.
func (h *Handler) resolveConversation(ctx context.Context, identity *auth.Identity, id int64) (*models.Conversation, error) {
	if id == 0 {
		return h.config.Store.CreateConversation(ctx, identity.UserID)
	}

	if err := validate.ConversationID(id); err != nil {
		return nil, err
	}

	conv, err := h.config.Store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != identity.UserID {
		return nil, models.NewDomainError(models.KindNotFound,
			fmt.Sprintf("conversation %d not found", id))
	}
	return conv, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: "Method not allowed.",
		Type:  string(models.KindValidationFailed),
	})
}
