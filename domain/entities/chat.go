package entities

import (
	"encoding/json"
	"time"
)

// ChatEventKind represents the kind of a chat event
type ChatEventKind string

const (
	ChatEventUserMessage      ChatEventKind = "user_message"
	ChatEventAssistantMessage ChatEventKind = "assistant_message"
	ChatEventToolCall         ChatEventKind = "tool_call"
	ChatEventToolResult       ChatEventKind = "tool_result"
)

// ChatEvent is one timestamped entry of a conversation
type ChatEvent struct {
	Kind      ChatEventKind   `json:"kind" bson:"kind"`
	Timestamp time.Time       `json:"timestamp" bson:"timestamp"`
	Text      string          `json:"text,omitempty" bson:"text,omitempty"`
	ToolName  string          `json:"tool_name,omitempty" bson:"tool_name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty" bson:"arguments,omitempty"`
	Result    string          `json:"result,omitempty" bson:"result,omitempty"`
}

func NewUserMessage(text string, at time.Time) ChatEvent {
	return ChatEvent{Kind: ChatEventUserMessage, Timestamp: at, Text: text}
}

func NewAssistantMessage(text string, at time.Time) ChatEvent {
	return ChatEvent{Kind: ChatEventAssistantMessage, Timestamp: at, Text: text}
}

func NewToolCall(toolName string, args json.RawMessage, at time.Time) ChatEvent {
	return ChatEvent{Kind: ChatEventToolCall, Timestamp: at, ToolName: toolName, Arguments: args}
}

func NewToolResult(toolName, result string, at time.Time) ChatEvent {
	return ChatEvent{Kind: ChatEventToolResult, Timestamp: at, ToolName: toolName, Result: result}
}

// ChatContext is a snapshot of a rolling conversation
type ChatContext struct {
	ChatID       string      `json:"chat_id" bson:"chat_id"`
	StartedAt    time.Time   `json:"started_at" bson:"started_at"`
	LastActivity time.Time   `json:"last_activity" bson:"last_activity"`
	Events       []ChatEvent `json:"events" bson:"events"`
}

// Clone returns a deep copy of the context
func (c ChatContext) Clone() ChatContext {
	events := make([]ChatEvent, len(c.Events))
	for i, e := range c.Events {
		if e.Arguments != nil {
			args := make(json.RawMessage, len(e.Arguments))
			copy(args, e.Arguments)
			e.Arguments = args
		}
		events[i] = e
	}
	c.Events = events
	return c
}
