package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/internal/satellite"
)

const protocolVersion = 1

// satelliteClient drives one websocket connection through the protocol
type satelliteClient struct {
	conn     *websocket.Conn
	hello    satellite.HelloMessage
	realtime bool
	timeout  time.Duration
	logger   *zap.Logger
}

// reply is what the core answered to one utterance
type reply struct {
	Audio  []byte
	Format entities.AudioFormat
	Frames int
}

// ProtocolError is an error frame sent by the core
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("core error %s: %s", e.Code, e.Message)
}

// handshake sends hello and waits for hello.ack
func (c *satelliteClient) handshake() error {
	c.hello.Type = satellite.MessageTypeHello
	c.hello.ProtocolVersion = protocolVersion
	if err := c.conn.WriteJSON(c.hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	var ack satellite.HelloAckMessage
	if err := c.expect(satellite.MessageTypeHelloAck, &ack); err != nil {
		return err
	}
	if !ack.Accepted {
		return errors.New("hello rejected")
	}
	c.logger.Info("Handshake accepted", zap.String("satelliteID", c.hello.SatelliteID))
	return nil
}

// speak sends one utterance and collects the spoken reply
func (c *satelliteClient) speak(sessionID string, pcm []byte) (*reply, error) {
	start := satellite.SessionStartMessage{
		BaseMessage: satellite.BaseMessage{Type: satellite.MessageTypeSessionStart},
		SessionID:   sessionID,
		Timestamp:   time.Now().UnixMilli(),
	}
	if err := c.conn.WriteJSON(start); err != nil {
		return nil, fmt.Errorf("send session.start: %w", err)
	}
	var ack satellite.SessionAckMessage
	if err := c.expect(satellite.MessageTypeSessionAck, &ack); err != nil {
		return nil, err
	}

	frameSize, err := c.hello.AudioFormat.FrameSize()
	if err != nil {
		return nil, err
	}
	frameDuration := time.Duration(c.hello.AudioFormat.FrameMs) * time.Millisecond
	frames := 0
	for offset := 0; offset < len(pcm); offset += frameSize {
		end := min(offset+frameSize, len(pcm))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, pcm[offset:end]); err != nil {
			return nil, fmt.Errorf("send audio frame %d: %w", frames, err)
		}
		frames++
		if c.realtime {
			time.Sleep(frameDuration)
		}
	}
	c.logger.Info("Audio sent", zap.String("sessionID", sessionID), zap.Int("frames", frames), zap.Int("bytes", len(pcm)))

	end := satellite.AudioEndMessage{
		BaseMessage: satellite.BaseMessage{Type: satellite.MessageTypeAudioEnd},
		SessionID:   sessionID,
		Reason:      "file_end",
	}
	if err := c.conn.WriteJSON(end); err != nil {
		return nil, fmt.Errorf("send audio.end: %w", err)
	}

	return c.receivePlayback()
}

// receivePlayback reads tts.start, the audio frames and tts.end
func (c *satelliteClient) receivePlayback() (*reply, error) {
	var out reply
	started := false
	for {
		messageType, data, err := c.read()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.BinaryMessage {
			if !started {
				continue
			}
			out.Audio = append(out.Audio, data...)
			out.Frames++
			continue
		}

		var base satellite.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		switch base.Type {
		case satellite.MessageTypeTTSStart:
			var m satellite.TTSStartMessage
			json.Unmarshal(data, &m)
			out.Format = m.AudioFormat
			started = true
		case satellite.MessageTypeTTSEnd:
			return &out, nil
		case satellite.MessageTypeBargeIn:
			return &out, errors.New("playback interrupted by barge-in")
		case satellite.MessageTypeError:
			var m satellite.ErrorMessage
			json.Unmarshal(data, &m)
			return nil, &ProtocolError{Code: m.Code, Message: m.Message}
		default:
			c.logger.Debug("Ignoring frame", zap.String("type", string(base.Type)))
		}
	}
}

// expect reads until a text frame of type want arrives
func (c *satelliteClient) expect(want satellite.MessageType, v any) error {
	for {
		messageType, data, err := c.read()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var base satellite.BaseMessage
		if err := json.Unmarshal(data, &base); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}
		switch base.Type {
		case want:
			return json.Unmarshal(data, v)
		case satellite.MessageTypeError:
			var m satellite.ErrorMessage
			json.Unmarshal(data, &m)
			return &ProtocolError{Code: m.Code, Message: m.Message}
		}
	}
}

func (c *satelliteClient) read() (int, []byte, error) {
	if c.timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, fmt.Errorf("read: %w", err)
	}
	return messageType, data, nil
}

// close sends a normal closure frame
func (c *satelliteClient) close() error {
	err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.conn.Close()
	return err
}
