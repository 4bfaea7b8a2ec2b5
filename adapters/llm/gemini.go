package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTimeoutSeconds = 30
	maxAttempts           = 3
)

var (
	_ repositories.LargeLanguageModel = (*Gemini)(nil)
	_ repositories.Router             = (*Gemini)(nil)

	errEmptyResponse = errors.New("no content generated")
)

// GeminiConfig holds the settings of the Gemini backend
type GeminiConfig struct {
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// NewGeminiConfigFromEnv reads GEMINI_API_KEY and GEMINI_MODEL
func NewGeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey: os.Getenv("GEMINI_API_KEY"),
		Model:  os.Getenv("GEMINI_MODEL"),
	}
}

// Gemini serves both the language-model and the routing stage using
// Google's Gemini API
type Gemini struct {
	client  *genai.Client
	logger  *zap.Logger
	model   string
	timeout time.Duration
}

// NewGemini creates a new Gemini backend
func NewGemini(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &Gemini{
		client:  client,
		logger:  logger,
		model:   model,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

func (g *Gemini) Model() string { return g.model }

// Generate answers the input given its chat history and offered tools
func (g *Gemini) Generate(ctx context.Context, input domain.LlmInput, config domain.LlmConfig) (domain.LlmOutput, error) {
	model := g.model
	if config.Model != "" {
		model = config.Model
	}

	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(config.MaxTokens),
		Tools:           toTools(input.Tools),
	}
	if config.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(config.Temperature))
	}
	if input.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(input.System, genai.RoleUser)
	}

	contents := toContents(input.Chat.Events, input.Text)
	response, err := g.generate(ctx, model, contents, genConfig)
	if err != nil {
		return domain.LlmOutput{}, err
	}

	output, err := fromResponse(response)
	if err != nil {
		return domain.LlmOutput{}, err
	}

	g.logger.Info("Gemini message processed",
		zap.String("model", model),
		zap.String("responsePreview", truncate(output.Text, 50)),
		zap.Int("toolCalls", len(output.ToolCalls)),
		zap.Int("historyLength", len(contents)))
	return output, nil
}

// Route classifies the text into one of the allowed specialities using a
// JSON constrained response
func (g *Gemini) Route(ctx context.Context, input domain.RouterInput, config domain.RouterConfig) (domain.RouterOutput, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(0)),
		SystemInstruction: genai.NewContentFromText(routerPrompt(config.AllowedSpecialities), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    routeSchema(config.AllowedSpecialities),
	}

	response, err := g.generate(ctx, g.model, []*genai.Content{genai.NewContentFromText(input.Text, genai.RoleUser)}, genConfig)
	if err != nil {
		return domain.RouterOutput{}, err
	}

	var output domain.RouterOutput
	if err := json.Unmarshal([]byte(response.Text()), &output); err != nil {
		return domain.RouterOutput{}, fmt.Errorf("failed to decode routing decision: %w", err)
	}
	return output, nil
}

// generate calls the model, retrying transient failures
func (g *Gemini) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, model, contents, config)
		if err == nil {
			return response, nil
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("failed to generate content: %w", err)
}

func routerPrompt(allowed []string) string {
	return "You route requests for a home voice assistant. Classify the user's request into exactly one of these specialities: " +
		strings.Join(allowed, ", ") +
		". Use General when nothing else fits. Answer with the speciality, a confidence between 0 and 1 and a short reason."
}

func routeSchema(allowed []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"speciality": {Type: genai.TypeString, Enum: allowed},
			"confidence": {Type: genai.TypeNumber},
			"reason":     {Type: genai.TypeString},
		},
		Required: []string{"speciality", "confidence"},
	}
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
