package mock

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
)

const (
	ModelName = "mock"

	defaultSampleRate = 16000
	msPerCharacter    = 60
	maxSpeech         = 10 * time.Second
	toneHz            = 440
)

var (
	_ repositories.SpeechToText       = (*SpeechToText)(nil)
	_ repositories.Router             = (*Router)(nil)
	_ repositories.LargeLanguageModel = (*LanguageModel)(nil)
	_ repositories.TextToSpeech       = (*TextToSpeech)(nil)
)

// SpeechToText is a placeholder implementation for speech recognition
type SpeechToText struct {
	logger *zap.Logger
}

// NewSpeechToText creates a new mock speech-to-text service
func NewSpeechToText(logger *zap.Logger) *SpeechToText {
	return &SpeechToText{logger: logger}
}

func (s *SpeechToText) Model() string { return ModelName }

// Transcribe picks a canned transcript based on the utterance duration
func (s *SpeechToText) Transcribe(ctx context.Context, input domain.SttInput, config domain.SttConfig) (domain.SttOutput, error) {
	format := entities.AudioFormat{SampleRate: input.SampleRate, Channels: input.Channels}
	var duration time.Duration
	if bps := format.BytesPerSecond(); bps > 0 {
		duration = time.Duration(len(input.Data)) * time.Second / time.Duration(bps)
	}

	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(input.Data)),
		zap.Int("sampleRate", input.SampleRate),
		zap.String("encoding", input.Encoding),
		zap.Duration("duration", duration))

	var text string
	switch {
	case duration > 3*time.Second:
		text = "What is the weather like in Jakarta today?"
	case duration > 2*time.Second:
		text = "Turn on the living room lights."
	case duration > time.Second:
		text = "How do I reverse a slice in Go?"
	default:
		text = "Hello"
	}

	language := config.Language
	if language == "" {
		language = "en-US"
	}
	return domain.SttOutput{Text: text, Confidence: 0.99, Language: language}, nil
}

// Router classifies by keywords
type Router struct {
	logger *zap.Logger
}

// NewRouter creates a new mock router
func NewRouter(logger *zap.Logger) *Router {
	return &Router{logger: logger}
}

func (r *Router) Model() string { return ModelName }

var routingKeywords = []struct {
	speciality string
	words      []string
}{
	{"HomeControl", []string{"light", "lamp", "thermostat", "heater", "door", "turn on", "turn off"}},
	{"Coding", []string{"code", "function", "slice", "bug", "compile", "golang", " go?"}},
}

// Route returns the first speciality whose keywords occur in the text and
// that is allowed, General otherwise
func (r *Router) Route(ctx context.Context, input domain.RouterInput, config domain.RouterConfig) (domain.RouterOutput, error) {
	text := strings.ToLower(input.Text)
	for _, rule := range routingKeywords {
		if !allowed(rule.speciality, config.AllowedSpecialities) {
			continue
		}
		for _, word := range rule.words {
			if strings.Contains(text, word) {
				return domain.RouterOutput{Speciality: rule.speciality, Confidence: 0.8, Reason: "keyword " + strings.TrimSpace(word)}, nil
			}
		}
	}
	return domain.RouterOutput{Speciality: "General", Confidence: 0.5, Reason: "no keyword matched"}, nil
}

func allowed(speciality string, list []string) bool {
	if len(list) == 0 {
		return true
	}
	for _, s := range list {
		if strings.EqualFold(s, speciality) {
			return true
		}
	}
	return false
}

// LanguageModel answers with canned text and exercises the weather tool
type LanguageModel struct {
	logger *zap.Logger
}

// NewLanguageModel creates a new mock language model
func NewLanguageModel(logger *zap.Logger) *LanguageModel {
	return &LanguageModel{logger: logger}
}

func (m *LanguageModel) Model() string { return ModelName }

// Generate requests get_weather once for weather questions, then answers
// with the tool result.
func (m *LanguageModel) Generate(ctx context.Context, input domain.LlmInput, config domain.LlmConfig) (domain.LlmOutput, error) {
	events := input.Chat.Events
	if n := len(events); n > 0 && events[n-1].Kind == entities.ChatEventToolResult {
		return domain.LlmOutput{Text: events[n-1].Result}, nil
	}

	if strings.Contains(strings.ToLower(input.Text), "weather") && hasTool(input.Tools, "get_weather") {
		return domain.LlmOutput{ToolCalls: []domain.ToolCall{{
			ID:        "call-1",
			Name:      "get_weather",
			Arguments: map[string]any{"location": locationOf(input.Text)},
		}}}, nil
	}

	switch {
	case strings.TrimSpace(input.Text) == "":
		return domain.LlmOutput{Text: "I did not catch that."}, nil
	case len(events) > 0:
		return domain.LlmOutput{Text: fmt.Sprintf("You said %q. We have exchanged %d messages so far.", input.Text, len(events))}, nil
	default:
		return domain.LlmOutput{Text: fmt.Sprintf("You said %q.", input.Text)}, nil
	}
}

func hasTool(tools []entities.ToolDefinition, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// locationOf returns the word after " in ", or Jakarta
func locationOf(text string) string {
	_, after, ok := strings.Cut(text, " in ")
	if !ok {
		return "Jakarta"
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return "Jakarta"
	}
	return strings.Trim(fields[0], "?.,!")
}

// TextToSpeech renders a tone whose length follows the text length
type TextToSpeech struct {
	logger *zap.Logger
}

// NewTextToSpeech creates a new mock text-to-speech service
func NewTextToSpeech(logger *zap.Logger) *TextToSpeech {
	return &TextToSpeech{logger: logger}
}

func (t *TextToSpeech) Model() string { return ModelName }

// Synthesize returns mono pcm_s16le audio at the requested sample rate
func (t *TextToSpeech) Synthesize(ctx context.Context, input domain.TtsInput, config domain.TtsConfig) (domain.TtsOutput, error) {
	sampleRate := config.SampleRate
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	duration := time.Duration(len(input.Text)*msPerCharacter) * time.Millisecond
	if duration > maxSpeech {
		duration = maxSpeech
	}

	t.logger.Info("Processing text-to-speech",
		zap.String("text", input.Text),
		zap.Int("sampleRate", sampleRate),
		zap.Duration("duration", duration))

	return domain.TtsOutput{
		Data:       Tone(sampleRate, duration),
		Encoding:   entities.EncodingPCMS16LE,
		SampleRate: sampleRate,
		Channels:   1,
	}, nil
}

// Tone renders a 440Hz mono pcm_s16le sine wave
func Tone(sampleRate int, duration time.Duration) []byte {
	samples := int(int64(sampleRate) * int64(duration) / int64(time.Second))
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := 0.3 * math.Sin(2*math.Pi*toneHz*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}
