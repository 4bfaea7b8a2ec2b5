package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

const archiveTimeout = 10 * time.Second

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithArchive stores every expired, non-empty chat in archive
func WithArchive(archive repositories.ChatArchive) Option {
	return func(m *Manager) {
		m.archive = archive
	}
}

// Manager owns the rolling chat context. Expiry is checked lazily on every
// read and write; there is no background timer.
type Manager struct {
	mu           sync.Mutex
	chatID       string
	startedAt    time.Time
	lastActivity time.Time
	events       []entities.ChatEvent
	expiration   time.Duration

	now     func() time.Time
	archive repositories.ChatArchive
	logger  *zap.Logger
	pending sync.WaitGroup
}

// NewManager creates a manager whose chat resets after expiration of inactivity
func NewManager(expiration time.Duration, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		expiration: expiration,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reset(m.now())
	return m
}

// AddEvent appends an event, starting a new chat first if the current one expired
func (m *Manager) AddEvent(event entities.ChatEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expireLocked(now)

	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if n := len(m.events); n > 0 && event.Timestamp.Before(m.events[n-1].Timestamp) {
		event.Timestamp = m.events[n-1].Timestamp
	}
	m.events = append(m.events, event)
	m.lastActivity = now
}

// Snapshot returns an immutable copy of the current chat
func (m *Manager) Snapshot() entities.ChatContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(m.now())
	return m.contextLocked().Clone()
}

// ChatID returns the current chat id, rotating it if the chat expired
func (m *Manager) ChatID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(m.now())
	return m.chatID
}

// Wait blocks until pending archive writes finish
func (m *Manager) Wait() {
	m.pending.Wait()
}

func (m *Manager) contextLocked() entities.ChatContext {
	return entities.ChatContext{
		ChatID:       m.chatID,
		StartedAt:    m.startedAt,
		LastActivity: m.lastActivity,
		Events:       m.events,
	}
}

func (m *Manager) expireLocked(now time.Time) {
	if now.Sub(m.lastActivity) <= m.expiration {
		return
	}

	expired := m.contextLocked().Clone()
	m.reset(now)
	m.logger.Info("Chat expired",
		zap.String("expiredChatID", expired.ChatID),
		zap.String("chatID", m.chatID),
		zap.Int("events", len(expired.Events)))

	if m.archive != nil && len(expired.Events) > 0 {
		m.pending.Add(1)
		go m.archiveChat(expired)
	}
}

func (m *Manager) reset(now time.Time) {
	m.chatID = uuid.NewString()
	m.startedAt = now
	m.lastActivity = now
	m.events = nil
}

func (m *Manager) archiveChat(chat entities.ChatContext) {
	defer m.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := m.archive.Save(ctx, chat); err != nil {
		m.logger.Error("Failed to archive chat",
			zap.String("chatID", chat.ChatID),
			zap.Error(err))
		return
	}
	m.logger.Debug("Archived chat", zap.String("chatID", chat.ChatID))
}
