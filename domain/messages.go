package domain

import (
	"errors"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// WorkerRequest is the envelope POSTed to a worker's /infer endpoint
type WorkerRequest[I, C, X any] struct {
	RequestID string `json:"request_id"`
	Input     I      `json:"input"`
	Config    C      `json:"config"`
	Context   X      `json:"context"`
}

// WorkerUsage reports which model served a request and how long it took
type WorkerUsage struct {
	Model     string `json:"model"`
	LatencyMs int64  `json:"latency_ms"`
}

// WorkerResponse is the envelope a worker answers with
type WorkerResponse[O any] struct {
	RequestID string      `json:"request_id"`
	Usage     WorkerUsage `json:"usage"`
	Output    O           `json:"output"`
	Error     string      `json:"error,omitempty"`
}

// Err converts the error field into a Go error
func (r *WorkerResponse[O]) Err() error {
	if r.Error == "" {
		return nil
	}
	return errors.New(r.Error)
}

// Speech-to-text stage

type SttInput struct {
	Data       []byte `json:"data_base64"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type SttConfig struct {
	Language string `json:"language,omitempty"`
}

type SttContext struct {
	Location    string `json:"location"`
	SatelliteID string `json:"satellite_id,omitempty"`
}

type SttOutput struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
}

type (
	SttRequest  = WorkerRequest[SttInput, SttConfig, SttContext]
	SttResponse = WorkerResponse[SttOutput]
)

// Routing stage

type RouterInput struct {
	Text string `json:"text"`
}

type RouterConfig struct {
	AllowedSpecialities []string `json:"allowed_specialities"`
}

type RouterContext struct {
	Location string `json:"location"`
}

type RouterOutput struct {
	Speciality string  `json:"speciality"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

type (
	RouterRequest  = WorkerRequest[RouterInput, RouterConfig, RouterContext]
	RouterResponse = WorkerResponse[RouterOutput]
)

// Language-model stage

type LlmInput struct {
	Text   string                    `json:"text"`
	System string                    `json:"system,omitempty"`
	Tools  []entities.ToolDefinition `json:"tools"`
	Chat   entities.ChatContext      `json:"chat"`
}

type LlmConfig struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type LlmContext struct {
	Location string `json:"location"`
	Language string `json:"language,omitempty"`
}

// ToolCall is a tool invocation requested by a language model
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type LlmOutput struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type (
	LlmRequest  = WorkerRequest[LlmInput, LlmConfig, LlmContext]
	LlmResponse = WorkerResponse[LlmOutput]
)

// Text-to-speech stage

type TtsInput struct {
	Text string `json:"text"`
}

type TtsConfig struct {
	Voice      string  `json:"voice,omitempty"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

type TtsContext struct {
	Language string `json:"language,omitempty"`
}

type TtsOutput struct {
	Data       []byte `json:"data_base64"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type (
	TtsRequest  = WorkerRequest[TtsInput, TtsConfig, TtsContext]
	TtsResponse = WorkerResponse[TtsOutput]
)
