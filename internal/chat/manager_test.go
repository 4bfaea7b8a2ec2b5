package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/arunika-core/domain/entities"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryArchive struct {
	mu    sync.Mutex
	chats []entities.ChatContext
	err   error
}

func (a *memoryArchive) Save(_ context.Context, chat entities.ChatContext) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.chats = append(a.chats, chat)
	return nil
}

func (a *memoryArchive) Recent(_ context.Context, limit int) ([]entities.ChatContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if limit > len(a.chats) {
		limit = len(a.chats)
	}
	return append([]entities.ChatContext(nil), a.chats[:limit]...), nil
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(5*time.Minute, zaptest.NewLogger(t), opts...), clock
}

func TestManager_AppendWithinExpiration(t *testing.T) {
	m, clock := newTestManager(t)
	id := m.ChatID()

	m.AddEvent(entities.NewUserMessage("hello", clock.Now()))
	clock.Advance(4 * time.Minute)
	m.AddEvent(entities.NewAssistantMessage("hi there", clock.Now()))

	snap := m.Snapshot()
	if snap.ChatID != id {
		t.Errorf("Chat id changed within expiration: %s -> %s", id, snap.ChatID)
	}
	if len(snap.Events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(snap.Events))
	}
	if snap.Events[0].Kind != entities.ChatEventUserMessage || snap.Events[1].Kind != entities.ChatEventAssistantMessage {
		t.Errorf("Unexpected event order: %+v", snap.Events)
	}
}

func TestManager_ExpiryResetsBeforeAppend(t *testing.T) {
	m, clock := newTestManager(t)

	m.AddEvent(entities.NewUserMessage("first chat", clock.Now()))
	oldID := m.ChatID()

	clock.Advance(5*time.Minute + time.Second)
	m.AddEvent(entities.NewUserMessage("second chat", clock.Now()))

	snap := m.Snapshot()
	if snap.ChatID == oldID {
		t.Error("Expected a new chat id after expiration")
	}
	if len(snap.Events) != 1 || snap.Events[0].Text != "second chat" {
		t.Errorf("New event should be the first of the new chat, got %+v", snap.Events)
	}
}

func TestManager_SnapshotExpiresLazily(t *testing.T) {
	m, clock := newTestManager(t)
	m.AddEvent(entities.NewUserMessage("hello", clock.Now()))
	oldID := m.ChatID()

	clock.Advance(6 * time.Minute)
	snap := m.Snapshot()
	if snap.ChatID == oldID || len(snap.Events) != 0 {
		t.Errorf("Snapshot after expiration should be a fresh chat, got %+v", snap)
	}
}

func TestManager_SnapshotDoesNotRefreshActivity(t *testing.T) {
	m, clock := newTestManager(t)
	m.AddEvent(entities.NewUserMessage("hello", clock.Now()))

	clock.Advance(3 * time.Minute)
	m.Snapshot()
	clock.Advance(3 * time.Minute)

	if len(m.Snapshot().Events) != 0 {
		t.Error("Reads must not extend the idle window")
	}
}

func TestManager_SnapshotIsImmutable(t *testing.T) {
	m, clock := newTestManager(t)
	m.AddEvent(entities.NewUserMessage("hello", clock.Now()))

	snap := m.Snapshot()
	snap.Events[0].Text = "mutated"
	m.AddEvent(entities.NewAssistantMessage("hi", clock.Now()))

	if len(snap.Events) != 1 {
		t.Errorf("Earlier snapshot grew to %d events", len(snap.Events))
	}
	if m.Snapshot().Events[0].Text != "hello" {
		t.Error("Mutating a snapshot changed manager state")
	}
}

func TestManager_ChronologicalOrder(t *testing.T) {
	m, clock := newTestManager(t)
	m.AddEvent(entities.NewUserMessage("later", clock.Now()))
	m.AddEvent(entities.NewAssistantMessage("earlier", clock.Now().Add(-time.Minute)))

	snap := m.Snapshot()
	if snap.Events[1].Timestamp.Before(snap.Events[0].Timestamp) {
		t.Error("Events must stay chronologically ordered")
	}
}

func TestManager_ArchivesExpiredChat(t *testing.T) {
	archive := &memoryArchive{}
	m, clock := newTestManager(t, WithArchive(archive))

	m.Snapshot()
	clock.Advance(time.Hour)
	m.Snapshot()
	m.Wait()
	if len(archive.chats) != 0 {
		t.Fatal("Empty chats should not be archived")
	}

	m.AddEvent(entities.NewUserMessage("remember me", clock.Now()))
	oldID := m.ChatID()
	clock.Advance(time.Hour)
	m.AddEvent(entities.NewUserMessage("new topic", clock.Now()))
	m.Wait()

	if len(archive.chats) != 1 {
		t.Fatalf("Expected 1 archived chat, got %d", len(archive.chats))
	}
	if archive.chats[0].ChatID != oldID || archive.chats[0].Events[0].Text != "remember me" {
		t.Errorf("Unexpected archived chat %+v", archive.chats[0])
	}
}

func TestManager_ArchiveFailureIsLogged(t *testing.T) {
	archive := &memoryArchive{err: errors.New("disk full")}
	clock := &fakeClock{now: time.Now()}
	m := NewManager(time.Minute, zap.NewNop(), WithClock(clock.Now), WithArchive(archive))

	m.AddEvent(entities.NewUserMessage("hello", clock.Now()))
	clock.Advance(2 * time.Minute)
	m.AddEvent(entities.NewUserMessage("again", clock.Now()))
	m.Wait()

	if len(m.Snapshot().Events) != 1 {
		t.Error("Archive failure must not affect the live chat")
	}
}
