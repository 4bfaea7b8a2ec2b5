package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	chat_id       TEXT PRIMARY KEY,
	started_at    INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	events        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chats_last_activity ON chats(last_activity DESC);
`

// OpenDB opens a SQLite database at path with WAL journaling and a
// 5-second busy timeout, then pings it.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return db, nil
}

// ChatRepository archives expired chats in a SQLite table
type ChatRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ repositories.ChatArchive = (*ChatRepository)(nil)

// NewChatRepository creates the chats table when missing
func NewChatRepository(db *sql.DB, logger *zap.Logger) (*ChatRepository, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create chats schema: %w", err)
	}
	return &ChatRepository{db: db, logger: logger}, nil
}

// Save implements repositories.ChatArchive
func (r *ChatRepository) Save(ctx context.Context, chat entities.ChatContext) error {
	if chat.ChatID == "" {
		return errors.New("chat ID cannot be empty")
	}

	events := chat.Events
	if events == nil {
		events = []entities.ChatEvent{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshal events of %s: %w", chat.ChatID, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO chats (chat_id, started_at, last_activity, events)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			started_at = excluded.started_at,
			last_activity = excluded.last_activity,
			events = excluded.events`,
		chat.ChatID, chat.StartedAt.UnixNano(), chat.LastActivity.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("save chat %s: %w", chat.ChatID, err)
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

	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, started_at, last_activity, events
		FROM chats
		ORDER BY last_activity DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	chats := make([]entities.ChatContext, 0, limit)
	for rows.Next() {
		var (
			chat                    entities.ChatContext
			startedAt, lastActivity int64
			events                  string
		)
		if err := rows.Scan(&chat.ChatID, &startedAt, &lastActivity, &events); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if err := json.Unmarshal([]byte(events), &chat.Events); err != nil {
			return nil, fmt.Errorf("decode events of %s: %w", chat.ChatID, err)
		}
		chat.StartedAt = time.Unix(0, startedAt).UTC()
		chat.LastActivity = time.Unix(0, lastActivity).UTC()
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}
