package satellite

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// MessageType defines the type discriminator of a protocol text frame
type MessageType string

// Supported message types
const (
	MessageTypeHello        MessageType = "hello"
	MessageTypeHelloAck     MessageType = "hello.ack"
	MessageTypeSessionStart MessageType = "session.start"
	MessageTypeSessionAck   MessageType = "session.ack"
	MessageTypeAudioEnd     MessageType = "audio.end"
	MessageTypeSessionAbort MessageType = "session.abort"
	MessageTypeTTSStart     MessageType = "tts.start"
	MessageTypeTTSEnd       MessageType = "tts.end"
	MessageTypeBargeIn      MessageType = "barge_in"
	MessageTypeError        MessageType = "error"
)

// Error codes sent to satellites
const (
	ErrorCodeUnsupportedAudioFormat = "unsupported_audio_format"
	ErrorCodeAudioTooLong           = "audio_too_long"
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// BaseMessage carries the type discriminator shared by every text frame
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// Capabilities declares what the satellite hardware can do
type Capabilities struct {
	Speaker              bool `json:"speaker"`
	Display              bool `json:"display"`
	SupportsBargeIn      bool `json:"supports_barge_in"`
	SupportsStreamingTTS bool `json:"supports_streaming_tts"`
}

// HelloMessage opens the handshake
type HelloMessage struct {
	BaseMessage
	ProtocolVersion int                  `json:"protocol_version"`
	SatelliteID     string               `json:"satellite_id"`
	Area            string               `json:"area"`
	Language        string               `json:"language"`
	Capabilities    Capabilities         `json:"capabilities"`
	AudioFormat     entities.AudioFormat `json:"audio_format"`
}

// Info returns the satellite identity declared in the hello
func (m *HelloMessage) Info() entities.SatelliteInfo {
	return entities.SatelliteInfo{
		SatelliteID: m.SatelliteID,
		Area:        m.Area,
		Language:    m.Language,
	}
}

type HelloAckMessage struct {
	BaseMessage
	ProtocolVersion int  `json:"protocol_version"`
	Accepted        bool `json:"accepted"`
}

type SessionStartMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	// Timestamp is the device clock in milliseconds, logged only
	Timestamp int64  `json:"timestamp"`
}

type SessionAckMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

type AudioEndMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type SessionAbortMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type TTSStartMessage struct {
	BaseMessage
	SessionID   string               `json:"session_id"`
	AudioFormat entities.AudioFormat `json:"audio_format"`
	Streaming   bool                 `json:"streaming"`
}

type TTSEndMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

type BargeInMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
}

type ErrorMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// DecodeMessage parses an inbound text frame into its typed message.
// Frames without a type, with an unknown type or missing required fields
// are rejected.
func DecodeMessage(data []byte) (any, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if base.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	switch base.Type {
	case MessageTypeHello:
		var msg HelloMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: invalid hello: %v", ErrMalformedMessage, err)
		}
		if msg.SatelliteID == "" {
			return nil, fmt.Errorf("%w: hello requires satellite_id", ErrMalformedMessage)
		}
		return &msg, nil

	case MessageTypeSessionStart:
		var msg SessionStartMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: invalid session.start: %v", ErrMalformedMessage, err)
		}
		if msg.SessionID == "" {
			return nil, fmt.Errorf("%w: session.start requires session_id", ErrMalformedMessage)
		}
		return &msg, nil

	case MessageTypeAudioEnd:
		var msg AudioEndMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: invalid audio.end: %v", ErrMalformedMessage, err)
		}
		return &msg, nil

	case MessageTypeSessionAbort:
		var msg SessionAbortMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("%w: invalid session.abort: %v", ErrMalformedMessage, err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, base.Type)
	}
}

func newHelloAck(protocolVersion int, accepted bool) HelloAckMessage {
	return HelloAckMessage{
		BaseMessage:     BaseMessage{Type: MessageTypeHelloAck},
		ProtocolVersion: protocolVersion,
		Accepted:        accepted,
	}
}

func newSessionAck(sessionID string) SessionAckMessage {
	return SessionAckMessage{BaseMessage: BaseMessage{Type: MessageTypeSessionAck}, SessionID: sessionID}
}

func newTTSStart(sessionID string, format entities.AudioFormat) TTSStartMessage {
	return TTSStartMessage{
		BaseMessage: BaseMessage{Type: MessageTypeTTSStart},
		SessionID:   sessionID,
		AudioFormat: format,
		Streaming:   true,
	}
}

func newTTSEnd(sessionID string) TTSEndMessage {
	return TTSEndMessage{BaseMessage: BaseMessage{Type: MessageTypeTTSEnd}, SessionID: sessionID}
}

func newBargeIn(sessionID string) BargeInMessage {
	return BargeInMessage{BaseMessage: BaseMessage{Type: MessageTypeBargeIn}, SessionID: sessionID}
}

func newError(sessionID, code, message string) ErrorMessage {
	return ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError},
		SessionID:   sessionID,
		Code:        code,
		Message:     message,
	}
}
