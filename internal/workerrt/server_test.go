package workerrt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/adapters/mock"
	"github.com/satriahrh/arunika-core/adapters/workerclient"
	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
)

type failingTTS struct{}

func (failingTTS) Model() string { return "broken" }

func (failingTTS) Synthesize(context.Context, domain.TtsInput, domain.TtsConfig) (domain.TtsOutput, error) {
	return domain.TtsOutput{}, errors.New("voice not found")
}

func startWorker(t *testing.T, stage entities.WorkerType, handler func(*zap.Logger) http.Handler) entities.WorkerDescriptor {
	t.Helper()
	server := httptest.NewServer(handler(zap.NewNop()))
	t.Cleanup(server.Close)
	return entities.WorkerDescriptor{WorkerID: string(stage) + "-1", Type: stage, Endpoint: server.URL}
}

func TestServer_SpeechToText(t *testing.T) {
	worker := startWorker(t, entities.WorkerTypeSTT, func(logger *zap.Logger) http.Handler {
		return NewServer(entities.WorkerTypeSTT, SpeechToTextHandler(mock.NewSpeechToText(logger), logger), logger).Handler()
	})
	client := workerclient.STT{Client: workerclient.New(nil, zap.NewNop())}

	resp, err := client.Infer(context.Background(), worker, domain.SttRequest{
		RequestID: "req-1",
		Input: domain.SttInput{
			Data:       make([]byte, 32000*4),
			Encoding:   entities.EncodingPCMS16LE,
			SampleRate: 16000,
			Channels:   1,
		},
		Config: domain.SttConfig{Language: "en-US"},
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if resp.RequestID != "req-1" {
		t.Errorf("expected request id req-1, got %s", resp.RequestID)
	}
	if resp.Usage.Model != mock.ModelName {
		t.Errorf("expected model %s, got %s", mock.ModelName, resp.Usage.Model)
	}
	if !strings.Contains(resp.Output.Text, "weather") {
		t.Errorf("unexpected transcript %q", resp.Output.Text)
	}
}

func TestServer_LanguageModelToolCall(t *testing.T) {
	worker := startWorker(t, entities.WorkerTypeLLM, func(logger *zap.Logger) http.Handler {
		return NewServer(entities.WorkerTypeLLM, LanguageModelHandler(mock.NewLanguageModel(logger), logger), logger).Handler()
	})
	client := workerclient.LLM{Client: workerclient.New(nil, zap.NewNop())}

	resp, err := client.Infer(context.Background(), worker, domain.LlmRequest{
		RequestID: "req-2",
		Input: domain.LlmInput{
			Text:  "What is the weather in Surabaya?",
			Tools: []entities.ToolDefinition{{Name: "get_weather"}},
		},
	})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(resp.Output.ToolCalls) != 1 || resp.Output.ToolCalls[0].Arguments["location"] != "Surabaya" {
		t.Errorf("unexpected tool calls %+v", resp.Output.ToolCalls)
	}
}

func TestServer_BackendErrorInEnvelope(t *testing.T) {
	worker := startWorker(t, entities.WorkerTypeTTS, func(logger *zap.Logger) http.Handler {
		return NewServer(entities.WorkerTypeTTS, TextToSpeechHandler(failingTTS{}, logger), logger).Handler()
	})
	client := workerclient.TTS{Client: workerclient.New(nil, zap.NewNop())}

	_, err := client.Infer(context.Background(), worker, domain.TtsRequest{Input: domain.TtsInput{Text: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "voice not found") {
		t.Errorf("expected backend error, got %v", err)
	}
}

func TestServer_InvalidRequest(t *testing.T) {
	logger := zap.NewNop()
	server := NewServer(entities.WorkerTypeRouter, RouterHandler(mock.NewRouter(logger), logger), logger)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		expected int
	}{
		{"malformed body", http.MethodPost, "/infer", "{not json", http.StatusBadRequest},
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"wrong method", http.MethodGet, "/infer", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.expected {
				t.Errorf("expected status %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}
