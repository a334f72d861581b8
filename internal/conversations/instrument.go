package conversations

import (
	"context"
	"time"

	"github.com/haasonsaas/steward/internal/observability"
	"github.com/haasonsaas/steward/pkg/models"
)

// WithMetrics wraps store so every operation records a store query metric.
// A nil metrics returns store unchanged.
func WithMetrics(store Store, metrics *observability.Metrics) Store {
	if metrics == nil {
		return store
	}
	return &instrumentedStore{next: store, metrics: metrics}
}

type instrumentedStore struct {
	next    Store
	metrics *observability.Metrics
}

func (s *instrumentedStore) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	start := time.Now()
	conv, err := s.next.CreateConversation(ctx, userID)
	s.record("insert", "conversations", start, err)
	return conv, err
}

func (s *instrumentedStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	start := time.Now()
	conv, err := s.next.GetConversation(ctx, id)
	s.record("select", "conversations", start, err)
	return conv, err
}

func (s *instrumentedStore) AppendMessage(ctx context.Context, conversationID int64, msg *models.Message) (*models.Message, error) {
	start := time.Now()
	stored, err := s.next.AppendMessage(ctx, conversationID, msg)
	s.record("insert", "messages", start, err)
	return stored, err
}

func (s *instrumentedStore) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	start := time.Now()
	msgs, err := s.next.RecentMessages(ctx, conversationID, limit)
	s.record("select", "messages", start, err)
	return msgs, err
}

func (s *instrumentedStore) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, int, error) {
	start := time.Now()
	convs, total, err := s.next.ListConversations(ctx, userID, limit, offset)
	s.record("select", "conversations", start, err)
	return convs, total, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}

func (s *instrumentedStore) record(operation, table string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordStoreQuery(operation, table, status, time.Since(start).Seconds())
}
