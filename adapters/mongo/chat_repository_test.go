package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// TestChatRepository_Integration requires a running MongoDB instance and
// is skipped when MONGODB_URI is not set
func TestChatRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, mongoURI, "arunika_test", logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		client.Database.Drop(ctx)
		client.Close(ctx)
	}()

	repo := NewChatRepository(client.Database, logger)
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"chat-a", "chat-b", "chat-c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		chat := entities.ChatContext{
			ChatID:       id,
			StartedAt:    at,
			LastActivity: at,
			Events: []entities.ChatEvent{
				entities.NewUserMessage("hello "+id, at),
				entities.NewAssistantMessage("hi", at),
			},
		}
		if err := repo.Save(ctx, chat); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	t.Run("RecentNewestFirst", func(t *testing.T) {
		chats, err := repo.Recent(ctx, 2)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(chats) != 2 {
			t.Fatalf("expected 2 chats, got %d", len(chats))
		}
		if chats[0].ChatID != "chat-c" || chats[1].ChatID != "chat-b" {
			t.Errorf("unexpected order %s, %s", chats[0].ChatID, chats[1].ChatID)
		}
		if len(chats[0].Events) != 2 || chats[0].Events[0].Text != "hello chat-c" {
			t.Errorf("events not round-tripped: %+v", chats[0].Events)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		chat := entities.ChatContext{ChatID: "chat-a", StartedAt: base, LastActivity: base.Add(time.Hour)}
		if err := repo.Save(ctx, chat); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		chats, err := repo.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(chats) != 3 || chats[0].ChatID != "chat-a" {
			t.Errorf("expected chat-a replaced and newest, got %d chats", len(chats))
		}
	})

	t.Run("EmptyID", func(t *testing.T) {
		if err := repo.Save(ctx, entities.ChatContext{}); err == nil {
			t.Error("expected error for empty chat ID")
		}
	})
}
