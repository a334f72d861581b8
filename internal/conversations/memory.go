package conversations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/steward/pkg/models"
)

// maxMessagesPerConversation bounds in-memory history so long-lived dev
// processes do not grow without limit. Durable stores keep everything.
const maxMessagesPerConversation = 1000

// MemoryStore provides an in-memory Store implementation for tests and
// local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	nextConvID    int64
	nextMsgID     int64
	conversations map[int64]*models.Conversation
	messages      map[int64][]*models.Message
}

// NewMemoryStore creates a new in-memory conversation store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: map[int64]*models.Conversation{},
		messages:      map[int64][]*models.Message{},
	}
}

// Ping implements Store. Memory is always reachable.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextConvID++
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        m.nextConvID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv

	clone := *conv
	return &clone, nil
}

func (m *MemoryStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, models.NewDomainError(models.KindNotFound,
			fmt.Sprintf("conversation %d not found", id))
	}

	clone := *conv
	return &clone, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, conversationID int64, msg *models.Message) (*models.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("message is required")
	}
	if !msg.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", msg.Role)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil, models.NewDomainError(models.KindNotFound,
			fmt.Sprintf("conversation %d not found", conversationID))
	}

	m.nextMsgID++
	now := time.Now().UTC()
	stored := &models.Message{
		ID:             m.nextMsgID,
		ConversationID: conversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		ToolCalls:      append([]models.ToolInvocation(nil), msg.ToolCalls...),
		CreatedAt:      now,
	}
	if len(msg.Metadata) > 0 {
		stored.Metadata = make(map[string]any, len(msg.Metadata))
		for k, v := range msg.Metadata {
			stored.Metadata[k] = v
		}
	}

	history := append(m.messages[conversationID], stored)
	if len(history) > maxMessagesPerConversation {
		history = history[len(history)-maxMessagesPerConversation:]
	}
	m.messages[conversationID] = history
	conv.UpdatedAt = now

	clone := *stored
	return &clone, nil
}

func (m *MemoryStore) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.messages[conversationID]
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	out := make([]*models.Message, len(history))
	for i, msg := range history {
		clone := *msg
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, int, error) {
	limit, offset = ClampListPage(limit, offset)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var owned []*models.Conversation
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			owned = append(owned, conv)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].UpdatedAt.After(owned[j].UpdatedAt)
	})

	total := len(owned)
	if offset >= len(owned) {
		return nil, total, nil
	}
	owned = owned[offset:]
	if len(owned) > limit {
		owned = owned[:limit]
	}

	out := make([]*models.Conversation, len(owned))
	for i, conv := range owned {
		clone := *conv
		out[i] = &clone
	}
	return out, total, nil
}
