package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

const chatsCollection = "chats"

// ChatRepository archives expired chats in MongoDB, one document per chat
type ChatRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.ChatArchive = (*ChatRepository)(nil)

// NewChatRepository creates a new MongoDB chat archive
func NewChatRepository(db *mongo.Database, logger *zap.Logger) *ChatRepository {
	return &ChatRepository{
		collection: db.Collection(chatsCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the chat_id and last_activity indexes
func (r *ChatRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chat_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "last_activity", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}
	return nil
}

// Save implements repositories.ChatArchive. Saving the same chat twice
// replaces the earlier document.
func (r *ChatRepository) Save(ctx context.Context, chat entities.ChatContext) error {
	if chat.ChatID == "" {
		return errors.New("chat ID cannot be empty")
	}

	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"chat_id": chat.ChatID},
		chat,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save chat %s: %w", chat.ChatID, err)
	}

	r.logger.Debug("Chat archived",
		zap.String("chatID", chat.ChatID),
		zap.Int("events", len(chat.Events)))
	return nil
}

// Recent implements repositories.ChatArchive
func (r *ChatRepository) Recent(ctx context.Context, limit int) ([]entities.ChatContext, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_activity", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find chats: %w", err)
	}
	defer cursor.Close(ctx)

	chats := make([]entities.ChatContext, 0, limit)
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}
	return chats, nil
}
