package conversations

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/haasonsaas/steward/pkg/models"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateConversation() error: %v", err)
	}
	if conv.ID == 0 {
		t.Error("conversation should get an ID")
	}

	got, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation() error: %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q", got.UserID)
	}

	_, err = store.GetConversation(ctx, 9999)
	if kind := models.KindOf(err); kind != models.KindNotFound {
		t.Errorf("kind = %s, want %s", kind, models.KindNotFound)
	}
}

func TestMemoryStore_AppendOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, _ := store.CreateConversation(ctx, "user-1")

	var prev *models.Message
	for i := 0; i < 5; i++ {
		msg, err := store.AppendMessage(ctx, conv.ID, &models.Message{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("AppendMessage() error: %v", err)
		}
		// Each appended message's timestamp is >= its predecessor's.
		if prev != nil && msg.CreatedAt.Before(prev.CreatedAt) {
			t.Errorf("message %d created before its predecessor", i)
		}
		prev = msg
	}

	msgs, err := store.RecentMessages(ctx, conv.ID, 100)
	if err != nil {
		t.Fatalf("RecentMessages() error: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5", len(msgs))
	}
	for i, msg := range msgs {
		if want := fmt.Sprintf("message %d", i); msg.Content != want {
			t.Errorf("msgs[%d] = %q, want %q", i, msg.Content, want)
		}
	}
}

func TestMemoryStore_AppendBumpsUpdatedAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, _ := store.CreateConversation(ctx, "user-1")
	before := conv.UpdatedAt

	if _, err := store.AppendMessage(ctx, conv.ID, &models.Message{
		Role:    models.RoleUser,
		Content: "hello",
	}); err != nil {
		t.Fatalf("AppendMessage() error: %v", err)
	}

	got, _ := store.GetConversation(ctx, conv.ID)
	if got.UpdatedAt.Before(before) {
		t.Error("append should bump updated_at")
	}
}

func TestMemoryStore_AppendToMissingConversation(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.AppendMessage(context.Background(), 123, &models.Message{
		Role:    models.RoleUser,
		Content: "hello",
	})
	if kind := models.KindOf(err); kind != models.KindNotFound {
		t.Errorf("kind = %s, want %s", kind, models.KindNotFound)
	}
}

func TestMemoryStore_RecentMessagesLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, _ := store.CreateConversation(ctx, "user-1")
	for i := 0; i < 30; i++ {
		store.AppendMessage(ctx, conv.ID, &models.Message{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("m%d", i),
		})
	}

	msgs, err := store.RecentMessages(ctx, conv.ID, 10)
	if err != nil {
		t.Fatalf("RecentMessages() error: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("len = %d, want 10", len(msgs))
	}
	if msgs[0].Content != "m20" || msgs[9].Content != "m29" {
		t.Errorf("window = %q..%q, want m20..m29", msgs[0].Content, msgs[9].Content)
	}

	// Shorter conversation than the limit returns everything, no error.
	short, _ := store.CreateConversation(ctx, "user-1")
	store.AppendMessage(ctx, short.ID, &models.Message{Role: models.RoleUser, Content: "only"})
	msgs, err = store.RecentMessages(ctx, short.ID, 10)
	if err != nil || len(msgs) != 1 {
		t.Errorf("short conversation: msgs=%d err=%v", len(msgs), err)
	}
}

func TestMemoryStore_ListConversations(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, _ := store.CreateConversation(ctx, "user-1")
	second, _ := store.CreateConversation(ctx, "user-1")
	store.CreateConversation(ctx, "user-2")

	// Touch the first conversation so it becomes the most recent.
	store.AppendMessage(ctx, first.ID, &models.Message{Role: models.RoleUser, Content: "bump"})

	convs, total, err := store.ListConversations(ctx, "user-1", 10, 0)
	if err != nil {
		t.Fatalf("ListConversations() error: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2", total)
	}
	if len(convs) != 2 || convs[0].ID != first.ID || convs[1].ID != second.ID {
		t.Errorf("order wrong: %+v", convs)
	}

	// Pagination past the end is empty, not an error.
	convs, total, err = store.ListConversations(ctx, "user-1", 10, 5)
	if err != nil || len(convs) != 0 || total != 2 {
		t.Errorf("past-end page: convs=%d total=%d err=%v", len(convs), total, err)
	}
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv, _ := store.CreateConversation(ctx, "user-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			store.AppendMessage(ctx, conv.ID, &models.Message{
				Role:    models.RoleUser,
				Content: fmt.Sprintf("c%d", n),
			})
		}(i)
	}
	wg.Wait()

	msgs, err := store.RecentMessages(ctx, conv.ID, 100)
	if err != nil {
		t.Fatalf("RecentMessages() error: %v", err)
	}
	if len(msgs) != 20 {
		t.Errorf("len = %d, want 20", len(msgs))
	}
	seen := map[int64]bool{}
	for _, msg := range msgs {
		if seen[msg.ID] {
			t.Errorf("duplicate message ID %d", msg.ID)
		}
		seen[msg.ID] = true
	}
}
