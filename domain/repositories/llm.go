package repositories

import (
	"context"

	"github.com/satriahrh/arunika-core/domain"
)

// LargeLanguageModel abstracts any chat/LLM provider run by an LLM worker
type LargeLanguageModel interface {
	// Generate answers the input given its chat history and tools
	Generate(ctx context.Context, input domain.LlmInput, config domain.LlmConfig) (domain.LlmOutput, error)
	Model() string
}

// Router classifies a transcript into one of the allowed specialities
type Router interface {
	Route(ctx context.Context, input domain.RouterInput, config domain.RouterConfig) (domain.RouterOutput, error)
	Model() string
}
