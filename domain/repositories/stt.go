package repositories

import (
	"context"

	"github.com/satriahrh/arunika-core/domain"
)

// SpeechToText abstracts speech recognition backends run by an STT worker
type SpeechToText interface {
	// Transcribe converts a complete utterance to text
	Transcribe(ctx context.Context, input domain.SttInput, config domain.SttConfig) (domain.SttOutput, error)
	// Model names the backing model for usage reporting
	Model() string
}
