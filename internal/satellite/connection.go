package satellite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Outbound frames buffered per connection.
	sendBufferSize = 256

	// DefaultMaxSessionAudio bounds one utterance.
	DefaultMaxSessionAudio = 30 * time.Second

	// Cap used when the negotiated format has no usable byte rate.
	fallbackMaxSessionBytes = 16 << 20
)

var (
	ErrConnectionClosed    = errors.New("satellite connection closed")
	ErrPlaybackInterrupted = errors.New("playback interrupted")
)

// WriteData is one outbound websocket frame
type WriteData struct {
	// Type is websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
	// Playback tags frames of one SendTTS call, zero for other frames
	Playback uint64
	// EndOfPlayback marks the tts.end frame of Playback
	EndOfPlayback bool
}

// socket is the subset of *websocket.Conn a connection uses
type socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Hooks connect a connection to its owner. Each hook is invoked outside the
// connection lock, from the receive loop goroutine.
type Hooks struct {
	// SessionCompleted receives ownership of a finished session
	SessionCompleted func(conn *Connection, session *entities.SatelliteSession)
	// SessionAborted fires when the device aborts the session in flight
	SessionAborted func(conn *Connection, sessionID string)
	// Closed fires exactly once when the receive loop exits
	Closed func(conn *Connection)
}

// ConnectionOptions tunes per-connection limits
type ConnectionOptions struct {
	MaxSessionAudio time.Duration
}

// Connection owns one satellite socket and its protocol state machine
type Connection struct {
	id     string
	socket socket
	hooks  Hooks
	opts   ConnectionOptions
	logger *zap.Logger

	// Buffered channel of outbound messages, drained by writePump.
	send      chan WriteData
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	state     State
	hello     *HelloMessage
	session   *entities.SatelliteSession
	sessionID string

	// playbacks numbers SendTTS calls. queued is the playback whose frames
	// may still sit in send; discarded is the one writePump must drop.
	playbacks     uint64
	queued        uint64
	queuedSession string
	discarded     uint64
}

func newConnection(id string, ws socket, hooks Hooks, opts ConnectionOptions, logger *zap.Logger) *Connection {
	if opts.MaxSessionAudio <= 0 {
		opts.MaxSessionAudio = DefaultMaxSessionAudio
	}
	return &Connection{
		id:     id,
		socket: ws,
		hooks:  hooks,
		opts:   opts,
		logger: logger.With(zap.String("connectionID", id)),
		send:   make(chan WriteData, sendBufferSize),
		done:   make(chan struct{}),
		state:  StateConnected,
	}
}

// ID returns the connection id assigned at accept
func (c *Connection) ID() string {
	return c.id
}

// State returns the current protocol state
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Satellite returns the identity from the accepted hello, if any
func (c *Connection) Satellite() (entities.SatelliteInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hello == nil {
		return entities.SatelliteInfo{}, false
	}
	return c.hello.Info(), true
}

// Done is closed once the connection has shut down
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Run pumps frames until the peer closes, the transport fails or ctx is
// cancelled. The Closed hook always runs before Run returns.
func (c *Connection) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.shutdown()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic in receive loop", zap.Any("panic", r))
		}
	}()

	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.socket.Close()
		case <-c.done:
		}
	}()

	c.readPump(ctx)
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.socket.Close()
		c.logger.Info("Satellite connection closed")
		if c.hooks.Closed != nil {
			c.hooks.Closed(c)
		}
	})
}

// readPump processes inbound frames strictly in arrival order
func (c *Connection) readPump(ctx context.Context) {
	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.socket.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		c.socket.SetReadDeadline(time.Now().Add(pongWait))

		switch messageType {
		case websocket.TextMessage:
			c.handleText(ctx, message)
		case websocket.BinaryMessage:
			c.handleBinary(ctx, message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump is the only writer of data frames to the socket
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			if c.dropPlaybackFrame(message) {
				continue
			}
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.socket.Close()
				return
			}
			if message.EndOfPlayback {
				c.playbackWritten(message.Playback)
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.socket.Close()
				return
			}

		case <-c.done:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// dropPlaybackFrame reports whether message belongs to a discarded playback
func (c *Connection) dropPlaybackFrame(message WriteData) bool {
	if message.Playback == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return message.Playback == c.discarded
}

func (c *Connection) playbackWritten(playback uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queued == playback {
		c.queued = 0
		c.queuedSession = ""
	}
}

// discardPlayback must be called with c.mu held
func (c *Connection) discardPlayback(playback uint64) {
	if playback == 0 {
		return
	}
	c.discarded = playback
	if c.queued == playback {
		c.queued = 0
		c.queuedSession = ""
	}
}

func (c *Connection) enqueue(ctx context.Context, data WriteData) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) sendJSON(ctx context.Context, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.enqueue(ctx, WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Connection) handleText(ctx context.Context, message []byte) {
	msg, err := DecodeMessage(message)
	if err != nil {
		c.logger.Warn("Ignoring invalid message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *HelloMessage:
		c.handleHello(ctx, m)
	case *SessionStartMessage:
		c.handleSessionStart(ctx, m)
	case *AudioEndMessage:
		c.handleAudioEnd(m)
	case *SessionAbortMessage:
		c.handleSessionAbort(m)
	}
}

func (c *Connection) ignored(messageType MessageType, state State) {
	c.logger.Debug("Ignoring message in wrong state",
		zap.String("type", string(messageType)),
		zap.String("state", state.String()))
}

func (c *Connection) handleHello(ctx context.Context, m *HelloMessage) {
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		c.ignored(m.Type, state)
		return
	}
	c.hello = m
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info("Satellite handshake accepted",
		zap.String("satelliteID", m.SatelliteID),
		zap.String("area", m.Area),
		zap.String("language", m.Language),
		zap.Int("protocolVersion", m.ProtocolVersion),
		zap.String("encoding", m.AudioFormat.Encoding),
		zap.Int("sampleRate", m.AudioFormat.SampleRate))

	if err := c.sendJSON(ctx, newHelloAck(m.ProtocolVersion, true)); err != nil {
		c.logger.Warn("Failed to send hello.ack", zap.Error(err))
	}
}

func (c *Connection) handleSessionStart(ctx context.Context, m *SessionStartMessage) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		c.ignored(m.Type, state)
		return
	}
	// Device clocks are uptime or epoch milliseconds; sessions use the core's clock
	c.session = entities.NewSatelliteSession(m.SessionID, time.Now(), c.hello.Info(), c.hello.AudioFormat)
	c.sessionID = m.SessionID
	c.state = StateSessionActive
	c.mu.Unlock()

	c.logger.Info("Session started",
		zap.String("sessionID", m.SessionID),
		zap.Int64("deviceTimestamp", m.Timestamp))

	if err := c.sendJSON(ctx, newSessionAck(m.SessionID)); err != nil {
		c.logger.Warn("Failed to send session.ack", zap.Error(err))
	}
}

func (c *Connection) handleAudioEnd(m *AudioEndMessage) {
	c.mu.Lock()
	if c.state != StateReceivingAudio || (m.SessionID != "" && m.SessionID != c.sessionID) {
		state := c.state
		c.mu.Unlock()
		c.ignored(m.Type, state)
		return
	}
	session := c.session
	c.session = nil
	c.state = StateWaitingForProcessing
	c.mu.Unlock()

	c.logger.Info("Session audio completed",
		zap.String("sessionID", session.SessionID),
		zap.String("reason", m.Reason),
		zap.Int("bytes", session.AudioLen()),
		zap.Duration("duration", session.AudioDuration()))

	if c.hooks.SessionCompleted != nil {
		c.hooks.SessionCompleted(c, session)
	}
}

func (c *Connection) handleSessionAbort(m *SessionAbortMessage) {
	c.mu.Lock()
	if !c.state.inSession() || (m.SessionID != "" && m.SessionID != c.sessionID) {
		state := c.state
		// Frames of a finished playback may still be queued
		if c.queued != 0 && (m.SessionID == "" || m.SessionID == c.queuedSession) {
			queuedSession := c.queuedSession
			c.discardPlayback(c.queued)
			c.mu.Unlock()
			c.logger.Info("Queued playback discarded", zap.String("sessionID", queuedSession), zap.String("reason", m.Reason))
			return
		}
		c.mu.Unlock()
		c.ignored(m.Type, state)
		return
	}
	sessionID := c.sessionID
	if c.state == StatePlayback {
		c.discardPlayback(c.queued)
	}
	c.session = nil
	c.sessionID = ""
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info("Session aborted", zap.String("sessionID", sessionID), zap.String("reason", m.Reason))

	if c.hooks.SessionAborted != nil {
		c.hooks.SessionAborted(c, sessionID)
	}
}

func (c *Connection) handleBinary(ctx context.Context, frame []byte) {
	c.mu.Lock()
	switch c.state {
	case StateSessionActive:
		c.state = StateReceivingAudio
	case StateReceivingAudio:
	default:
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Dropping audio frame outside a session",
			zap.String("state", state.String()),
			zap.Int("size", len(frame)))
		return
	}

	session := c.session
	if session.AudioLen()+len(frame) > c.maxSessionBytes() {
		c.mu.Unlock()
		c.logger.Warn("Session audio exceeds limit",
			zap.String("sessionID", session.SessionID),
			zap.Duration("limit", c.opts.MaxSessionAudio))
		c.SendError(ctx, ErrorCodeAudioTooLong,
			fmt.Sprintf("session audio exceeds %s", c.opts.MaxSessionAudio))
		return
	}
	session.AppendAudio(frame)
	c.mu.Unlock()
}

// maxSessionBytes must be called with c.mu held
func (c *Connection) maxSessionBytes() int {
	bps := c.hello.AudioFormat.BytesPerSecond()
	if bps == 0 {
		return fallbackMaxSessionBytes
	}
	return int(int64(bps) * int64(c.opts.MaxSessionAudio) / int64(time.Second))
}

// SendError notifies the satellite and returns the connection to Connected
func (c *Connection) SendError(ctx context.Context, code, message string) error {
	c.mu.Lock()
	sessionID := c.sessionID
	if c.state == StatePlayback {
		c.discardPlayback(c.queued)
	}
	c.session = nil
	c.sessionID = ""
	c.state = StateConnected
	c.mu.Unlock()

	c.logger.Info("Sending error to satellite",
		zap.String("sessionID", sessionID),
		zap.String("code", code),
		zap.String("message", message))

	return c.sendJSON(ctx, newError(sessionID, code, message))
}

// SendBargeIn asks the satellite to stop playback. No-op outside Playback.
func (c *Connection) SendBargeIn(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StatePlayback {
		c.mu.Unlock()
		return nil
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	return c.sendJSON(ctx, newBargeIn(sessionID))
}

// SendTTS streams synthesized audio as fixed-size frames between tts.start
// and tts.end. Only valid while waiting for processing; otherwise a no-op.
func (c *Connection) SendTTS(ctx context.Context, audio []byte) error {
	c.mu.Lock()
	if c.state != StateWaitingForProcessing {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("Ignoring playback request", zap.String("state", state.String()))
		return nil
	}
	format := c.hello.AudioFormat
	frameSize, ferr := format.FrameSize()
	if ferr != nil {
		c.mu.Unlock()
		c.logger.Warn("Cannot frame playback audio", zap.Error(ferr))
		if err := c.SendError(ctx, ErrorCodeUnsupportedAudioFormat, ferr.Error()); err != nil {
			return err
		}
		return fmt.Errorf("playback: %w", ferr)
	}
	sessionID := c.sessionID
	c.state = StatePlayback
	c.playbacks++
	playback := c.playbacks
	c.queued = playback
	c.queuedSession = sessionID
	c.mu.Unlock()

	finished := false
	defer func() {
		c.mu.Lock()
		if !finished {
			c.discardPlayback(playback)
		}
		if c.state == StatePlayback && c.sessionID == sessionID {
			c.state = StateConnected
			c.sessionID = ""
		}
		c.mu.Unlock()
	}()

	if err := c.sendJSON(ctx, newTTSStart(sessionID, format)); err != nil {
		return err
	}

	frames := 0
	for offset := 0; offset < len(audio); offset += frameSize {
		if !c.inPlayback(sessionID) {
			c.logger.Info("Playback interrupted", zap.String("sessionID", sessionID), zap.Int("framesSent", frames))
			return ErrPlaybackInterrupted
		}
		frame := make([]byte, frameSize)
		copy(frame, audio[offset:])
		if err := c.enqueue(ctx, WriteData{Type: websocket.BinaryMessage, Payload: frame, Playback: playback}); err != nil {
			return err
		}
		frames++
	}

	if !c.inPlayback(sessionID) {
		return ErrPlaybackInterrupted
	}
	end, err := json.Marshal(newTTSEnd(sessionID))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := c.enqueue(ctx, WriteData{Type: websocket.TextMessage, Payload: end, Playback: playback, EndOfPlayback: true}); err != nil {
		return err
	}
	finished = true

	c.logger.Info("Playback finished",
		zap.String("sessionID", sessionID),
		zap.Int("frames", frames),
		zap.Int("frameSize", frameSize))
	return nil
}

func (c *Connection) inPlayback(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StatePlayback && c.sessionID == sessionID
}

// pipelineFailed releases a connection whose pipeline failed without
// playback, so the device can start a new session.
func (c *Connection) pipelineFailed(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateWaitingForProcessing && c.sessionID == sessionID {
		c.state = StateReady
		c.sessionID = ""
	}
}
