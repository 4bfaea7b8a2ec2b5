package repositories

import (
	"context"

	"github.com/satriahrh/arunika-core/domain"
)

// TextToSpeech abstracts speech synthesis backends run by a TTS worker
type TextToSpeech interface {
	// Synthesize renders text to raw pcm_s16le audio
	Synthesize(ctx context.Context, input domain.TtsInput, config domain.TtsConfig) (domain.TtsOutput, error)
	Model() string
}
