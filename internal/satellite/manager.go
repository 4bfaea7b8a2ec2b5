package satellite

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Pipeline processes one completed session
type Pipeline interface {
	Run(ctx context.Context) error
}

// PipelineFactory builds the pipeline for a completed session
type PipelineFactory func(conn *Connection, session *entities.SatelliteSession) Pipeline

type pipelineHandle struct {
	sessionID string
	cancel    context.CancelFunc
}

// Manager owns the live connections and at most one pipeline per connection
type Manager struct {
	mu          sync.Mutex
	connections map[string]*Connection
	pipelines   map[string]*pipelineHandle
	closed      bool

	factory PipelineFactory
	options ConnectionOptions
	logger  *zap.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a satellite manager
func NewManager(factory PipelineFactory, options ConnectionOptions, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		connections: make(map[string]*Connection),
		pipelines:   make(map[string]*pipelineHandle),
		factory:     factory,
		options:     options,
		logger:      logger,
		baseCtx:     ctx,
		baseCancel:  cancel,
	}
}

// HandleWebSocket upgrades the request and serves the satellite protocol
func (m *Manager) HandleWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		m.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	conn, err := m.Accept(ws)
	if err != nil {
		ws.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go conn.Run(m.baseCtx)
	return nil
}

// Accept registers a connection for an already upgraded socket
func (m *Manager) Accept(ws socket) (*Connection, error) {
	hooks := Hooks{
		SessionCompleted: m.HandleSessionCompleted,
		SessionAborted:   m.HandleSessionAborted,
		Closed:           m.Unregister,
	}
	conn := newConnection(uuid.NewString(), ws, hooks, m.options, m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrConnectionClosed
	}
	m.connections[conn.ID()] = conn
	m.logger.Info("Satellite connected",
		zap.String("connectionID", conn.ID()),
		zap.Int("connections", len(m.connections)))
	return conn, nil
}

// Unregister forgets a connection and cancels its pipeline
func (m *Manager) Unregister(conn *Connection) {
	m.mu.Lock()
	delete(m.connections, conn.ID())
	handle := m.pipelines[conn.ID()]
	delete(m.pipelines, conn.ID())
	remaining := len(m.connections)
	m.mu.Unlock()

	if handle != nil {
		handle.cancel()
	}
	m.logger.Info("Satellite disconnected",
		zap.String("connectionID", conn.ID()),
		zap.Int("connections", remaining))
}

// HandleSessionCompleted supersedes any running pipeline of the connection
// and starts a new one for session.
func (m *Manager) HandleSessionCompleted(conn *Connection, session *entities.SatelliteSession) {
	ctx, cancel := context.WithCancel(m.baseCtx)
	handle := &pipelineHandle{sessionID: session.SessionID, cancel: cancel}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return
	}
	if prev := m.pipelines[conn.ID()]; prev != nil {
		prev.cancel()
		m.logger.Info("Superseding running pipeline",
			zap.String("connectionID", conn.ID()),
			zap.String("previousSessionID", prev.sessionID),
			zap.String("sessionID", session.SessionID))
	}
	m.pipelines[conn.ID()] = handle
	m.wg.Add(1)
	m.mu.Unlock()

	go m.runPipeline(ctx, conn, session, handle)
}

// HandleSessionAborted cancels the pipeline of the aborted session
func (m *Manager) HandleSessionAborted(conn *Connection, sessionID string) {
	if m.CancelPipeline(conn.ID()) {
		m.logger.Info("Cancelled pipeline for aborted session",
			zap.String("connectionID", conn.ID()),
			zap.String("sessionID", sessionID))
	}
}

func (m *Manager) runPipeline(ctx context.Context, conn *Connection, session *entities.SatelliteSession, handle *pipelineHandle) {
	logger := m.logger.With(
		zap.String("connectionID", conn.ID()),
		zap.String("sessionID", session.SessionID))

	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panicked", zap.Any("panic", r))
		}
		handle.cancel()

		m.mu.Lock()
		if m.pipelines[conn.ID()] == handle {
			delete(m.pipelines, conn.ID())
		}
		m.mu.Unlock()
	}()

	err := m.factory(conn, session).Run(ctx)
	switch {
	case err == nil:
		logger.Info("Pipeline completed")
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		logger.Info("Pipeline cancelled", zap.NamedError("cause", err))
	case errors.Is(err, ErrPlaybackInterrupted), errors.Is(err, ErrConnectionClosed):
		logger.Info("Pipeline abandoned", zap.NamedError("cause", err))
	default:
		logger.Error("Pipeline failed", zap.Error(err))
		conn.pipelineFailed(session.SessionID)
	}
}

// CancelPipeline cancels the pipeline of a connection, reporting whether one ran
func (m *Manager) CancelPipeline(connectionID string) bool {
	m.mu.Lock()
	handle := m.pipelines[connectionID]
	delete(m.pipelines, connectionID)
	m.mu.Unlock()

	if handle == nil {
		return false
	}
	handle.cancel()
	return true
}

// CancelAll cancels every active pipeline
func (m *Manager) CancelAll() {
	m.mu.Lock()
	handles := m.pipelines
	m.pipelines = make(map[string]*pipelineHandle)
	m.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	if len(handles) > 0 {
		m.logger.Info("Cancelled all pipelines", zap.Int("count", len(handles)))
	}
}

// Shutdown cancels all pipelines, closes every connection and waits for the
// pipelines to return or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.CancelAll()
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connection returns a live connection by id
func (m *Manager) Connection(connectionID string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.connections[connectionID]
	return conn, ok
}

// Connections returns the ids of the live connections, sorted
func (m *Manager) Connections() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// ActivePipelines returns the number of running pipelines
func (m *Manager) ActivePipelines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pipelines)
}
