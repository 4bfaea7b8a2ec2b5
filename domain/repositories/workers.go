package repositories

import (
	"context"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
)

// SpeechToTextClient calls a remote STT worker
type SpeechToTextClient interface {
	Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.SttRequest) (*domain.SttResponse, error)
}

// RouterClient calls a remote routing worker
type RouterClient interface {
	Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.RouterRequest) (*domain.RouterResponse, error)
}

// LanguageModelClient calls a remote LLM worker
type LanguageModelClient interface {
	Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.LlmRequest) (*domain.LlmResponse, error)
}

// TextToSpeechClient calls a remote TTS worker
type TextToSpeechClient interface {
	Infer(ctx context.Context, worker entities.WorkerDescriptor, req domain.TtsRequest) (*domain.TtsResponse, error)
}
