package repositories

import (
	"context"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// ChatArchive stores chat contexts that expired out of the chat manager
type ChatArchive interface {
	Save(ctx context.Context, chat entities.ChatContext) error
	// Recent returns the most recently active archived chats, newest first
	Recent(ctx context.Context, limit int) ([]entities.ChatContext, error)
}
