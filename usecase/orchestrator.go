package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/domain/repositories"
	"github.com/satriahrh/arunika-core/internal/balancer"
)

// MaxToolRounds bounds how often one session may answer tool calls
const MaxToolRounds = 3

var (
	ErrEmptyTranscript = errors.New("empty transcript")
	ErrToolRounds      = errors.New("tool call rounds exhausted")
)

// WorkerSource lists alive workers
type WorkerSource interface {
	GetAliveWorkersOfType(workerType entities.WorkerType, speciality entities.Speciality) []entities.WorkerDescriptor
}

// ChatStore is the rolling chat the orchestrator reads and appends to
type ChatStore interface {
	AddEvent(event entities.ChatEvent)
	Snapshot() entities.ChatContext
}

// ToolCatalog offers tools to the language model and runs them
type ToolCatalog interface {
	Definitions(speciality entities.Speciality) []entities.ToolDefinition
	Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (string, error)
}

// Playback sends synthesized audio back to the device
type Playback interface {
	SendTTS(ctx context.Context, audio []byte) error
}

// Dependencies are the shared collaborators of every orchestrator
type Dependencies struct {
	Registry WorkerSource
	Balancer balancer.LoadBalancer

	STT    repositories.SpeechToTextClient
	Router repositories.RouterClient
	LLM    repositories.LanguageModelClient
	TTS    repositories.TextToSpeechClient

	Chat     ChatStore
	Tools    ToolCatalog
	Profiles entities.SpecialityProfiles
	Logger   *zap.Logger
}

// VoiceSessionOrchestrator runs the inference pipeline for one completed
// session: speech-to-text, routing, language model, text-to-speech and
// playback. It is built fresh for every session.
type VoiceSessionOrchestrator struct {
	session  *entities.SatelliteSession
	playback Playback
	deps     Dependencies
	logger   *zap.Logger
}

// NewVoiceSessionOrchestrator creates an orchestrator for session
func NewVoiceSessionOrchestrator(session *entities.SatelliteSession, playback Playback, deps Dependencies) *VoiceSessionOrchestrator {
	return &VoiceSessionOrchestrator{
		session:  session,
		playback: playback,
		deps:     deps,
		logger: deps.Logger.With(
			zap.String("sessionID", session.SessionID),
			zap.String("satelliteID", session.Satellite.SatelliteID)),
	}
}

// Run executes the pipeline. Stages run strictly in order and the first
// failing stage aborts the run with an error naming it.
func (o *VoiceSessionOrchestrator) Run(ctx context.Context) error {
	start := time.Now()
	o.logger.Info("Orchestrator starting",
		zap.Int("audioBytes", o.session.AudioLen()),
		zap.Duration("audioDuration", o.session.AudioDuration()))

	text, err := o.transcribe(ctx)
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	o.logger.Info("Transcription completed", zap.String("text", text))

	speciality, err := o.route(ctx, text)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	o.logger.Info("Routed session", zap.Stringer("speciality", speciality))

	response, err := o.generate(ctx, text, speciality)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	o.logger.Info("Language model responded", zap.String("response", preview(response, 200)))

	audio, err := o.synthesize(ctx, response)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	o.logger.Info("Synthesis completed", zap.Int("audioBytes", len(audio)))

	if err := o.playback.SendTTS(ctx, audio); err != nil {
		return fmt.Errorf("playback: %w", err)
	}

	o.logger.Info("Orchestrator finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (o *VoiceSessionOrchestrator) selectWorker(workerType entities.WorkerType, speciality entities.Speciality, key string) (entities.WorkerDescriptor, error) {
	candidates := o.deps.Registry.GetAliveWorkersOfType(workerType, speciality)
	worker, err := o.deps.Balancer.Select(candidates, key)
	if err != nil {
		return entities.WorkerDescriptor{}, err
	}
	o.logger.Debug("Selected worker",
		zap.String("key", key),
		zap.String("workerID", worker.WorkerID),
		zap.String("endpoint", worker.Endpoint),
		zap.Int("candidates", len(candidates)))
	return worker, nil
}

func (o *VoiceSessionOrchestrator) transcribe(ctx context.Context) (string, error) {
	worker, err := o.selectWorker(entities.WorkerTypeSTT, entities.SpecialityNone, "stt")
	if err != nil {
		return "", err
	}

	format := o.session.AudioFormat
	resp, err := o.deps.STT.Infer(ctx, worker, domain.SttRequest{
		RequestID: uuid.NewString(),
		Input: domain.SttInput{
			Data:       o.session.Audio(),
			Encoding:   format.Encoding,
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
		},
		Config: domain.SttConfig{Language: o.session.Satellite.Language},
		Context: domain.SttContext{
			Location:    o.session.Satellite.Area,
			SatelliteID: o.session.Satellite.SatelliteID,
		},
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Output.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (o *VoiceSessionOrchestrator) route(ctx context.Context, text string) (entities.Speciality, error) {
	worker, err := o.selectWorker(entities.WorkerTypeRouter, entities.SpecialityNone, "router")
	if err != nil {
		return entities.SpecialityNone, err
	}

	resp, err := o.deps.Router.Infer(ctx, worker, domain.RouterRequest{
		RequestID: uuid.NewString(),
		Input:     domain.RouterInput{Text: text},
		Config:    domain.RouterConfig{AllowedSpecialities: entities.SpecialityNames()},
		Context:   domain.RouterContext{Location: o.session.Satellite.Area},
	})
	if err != nil {
		return entities.SpecialityNone, err
	}

	return resolveSpeciality(resp.Output.Speciality, o.logger), nil
}

// resolveSpeciality maps a router label to a single speciality, General when
// the label names anything else.
func resolveSpeciality(label string, logger *zap.Logger) entities.Speciality {
	speciality, err := entities.ParseSpeciality(label)
	if err != nil || len(speciality.Singles()) != 1 {
		logger.Warn("Router returned unrecognized speciality, using General", zap.String("label", label))
		return entities.SpecialityGeneral
	}
	return speciality
}

func (o *VoiceSessionOrchestrator) generate(ctx context.Context, text string, speciality entities.Speciality) (string, error) {
	key := "llm:" + strings.ToLower(speciality.String())
	worker, err := o.selectWorker(entities.WorkerTypeLLM, speciality, key)
	if err != nil {
		return "", err
	}

	profile := o.deps.Profiles.Get(speciality)
	snapshot := o.deps.Chat.Snapshot()
	base := snapshot.Events

	// Tool events are kept local until the model answers so a failed stage
	// leaves the chat untouched.
	var pending []entities.ChatEvent
	for round := 0; ; round++ {
		chatCtx := snapshot
		chatCtx.Events = append(append(make([]entities.ChatEvent, 0, len(base)+len(pending)), base...), pending...)

		resp, err := o.deps.LLM.Infer(ctx, worker, domain.LlmRequest{
			RequestID: uuid.NewString(),
			Input: domain.LlmInput{
				Text:   text,
				System: profile.SystemPrompt,
				Tools:  o.deps.Tools.Definitions(speciality),
				Chat:   chatCtx,
			},
			Config: domain.LlmConfig{
				Model:       profile.Model,
				MaxTokens:   profile.MaxTokens,
				Temperature: profile.Temperature,
			},
			Context: domain.LlmContext{
				Location: o.session.Satellite.Area,
				Language: o.session.Satellite.Language,
			},
		})
		if err != nil {
			return "", err
		}

		output := resp.Output
		if len(output.ToolCalls) == 0 {
			o.commitChat(text, pending, output.Text)
			return output.Text, nil
		}
		if round >= MaxToolRounds {
			if output.Text != "" {
				o.commitChat(text, pending, output.Text)
				return output.Text, nil
			}
			return "", ErrToolRounds
		}

		for _, call := range output.ToolCalls {
			events, err := o.invokeTool(ctx, call)
			if err != nil {
				return "", err
			}
			pending = append(pending, events...)
		}
	}
}

func (o *VoiceSessionOrchestrator) invokeTool(ctx context.Context, call domain.ToolCall) ([]entities.ChatEvent, error) {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return nil, fmt.Errorf("tool %s: invalid arguments: %w", call.Name, err)
	}
	if call.Arguments == nil {
		args = json.RawMessage("{}")
	}

	callEvent := entities.NewToolCall(call.Name, args, time.Now())
	result, err := o.deps.Tools.Invoke(ctx, call.Name, args)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The model sees the failure and may recover from it
		o.logger.Warn("Tool call failed", zap.String("tool", call.Name), zap.Error(err))
		result = "error: " + err.Error()
	} else {
		o.logger.Info("Tool call completed", zap.String("tool", call.Name), zap.String("result", preview(result, 200)))
	}

	return []entities.ChatEvent{callEvent, entities.NewToolResult(call.Name, result, time.Now())}, nil
}

func (o *VoiceSessionOrchestrator) commitChat(text string, toolEvents []entities.ChatEvent, response string) {
	o.deps.Chat.AddEvent(entities.NewUserMessage(text, o.session.StartedAt))
	for _, event := range toolEvents {
		o.deps.Chat.AddEvent(event)
	}
	o.deps.Chat.AddEvent(entities.NewAssistantMessage(response, time.Now()))
}

func (o *VoiceSessionOrchestrator) synthesize(ctx context.Context, text string) ([]byte, error) {
	worker, err := o.selectWorker(entities.WorkerTypeTTS, entities.SpecialityNone, "tts")
	if err != nil {
		return nil, err
	}

	resp, err := o.deps.TTS.Infer(ctx, worker, domain.TtsRequest{
		RequestID: uuid.NewString(),
		Input:     domain.TtsInput{Text: text},
		Config: domain.TtsConfig{
			Speed:      1.0,
			SampleRate: o.session.AudioFormat.SampleRate,
		},
		Context: domain.TtsContext{Language: o.session.Satellite.Language},
	})
	if err != nil {
		return nil, err
	}

	output := resp.Output
	if output.SampleRate != 0 && output.SampleRate != o.session.AudioFormat.SampleRate {
		o.logger.Warn("Synthesized audio sample rate differs from satellite format",
			zap.Int("ttsSampleRate", output.SampleRate),
			zap.Int("satelliteSampleRate", o.session.AudioFormat.SampleRate))
	}
	return output.Data, nil
}

// preview shortens s to at most n runes for logging
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
