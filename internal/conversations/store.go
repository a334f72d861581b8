// Package conversations persists chat history and shapes the slice of it
// that each reasoning turn sees. Storage keeps the full history; the
// context window is a separate read-side concern (see Window).
package conversations

import (
	"context"

	"github.com/haasonsaas/steward/pkg/models"
)

// Store is the interface for conversation persistence. Implementations must
// support safe concurrent appends; they do not enforce ownership, which is
// the caller's job via the request identity.
type Store interface {
	// CreateConversation starts an empty conversation owned by userID.
	CreateConversation(ctx context.Context, userID string) (*models.Conversation, error)

	// GetConversation retrieves a conversation by ID. Returns a
	// KindNotFound DomainError when it does not exist.
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)

	// AppendMessage atomically inserts a message and bumps the
	// conversation's updated_at. Returns the stored message with its
	// assigned ID and timestamp.
	AppendMessage(ctx context.Context, conversationID int64, msg *models.Message) (*models.Message, error)

	// RecentMessages returns the most recent limit messages in
	// chronological order. Conversations shorter than limit return
	// everything without error.
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error)

	// ListConversations returns a user's conversations, most recently
	// updated first, plus the total count for pagination.
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, int, error)

	// Ping verifies the backing storage is reachable. Used by readiness
	// probes.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}

// Default page bounds for conversation listing.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ClampListPage normalizes limit/offset for ListConversations.
func ClampListPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
