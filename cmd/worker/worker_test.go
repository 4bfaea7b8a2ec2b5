package main

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/arunika-core/domain/entities"
	"github.com/satriahrh/arunika-core/internal/auth"
)

func TestTokenCmd(t *testing.T) {
	t.Run("mints a verifiable token", func(t *testing.T) {
		cmd := newTokenCmd()
		var out strings.Builder
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--secret", "s3cret", "--role", "satellite", "--subject", "kitchen-1"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("token execute: %v", err)
		}

		claims, err := auth.ValidateToken([]byte("s3cret"), strings.TrimSpace(out.String()))
		if err != nil {
			t.Fatalf("minted token is invalid: %v", err)
		}
		if claims.Role != auth.RoleSatellite || claims.Subject != "kitchen-1" {
			t.Errorf("unexpected claims %+v", claims)
		}
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		cmd := newTokenCmd()
		cmd.SetOut(&strings.Builder{})
		cmd.SetArgs([]string{"--secret", "s3cret", "--role", "admin"})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error for unknown role")
		}
	})

	t.Run("requires a secret", func(t *testing.T) {
		t.Setenv("AUTH_SECRET", "")
		cmd := newTokenCmd()
		cmd.SetOut(&strings.Builder{})
		cmd.SetArgs([]string{})
		if err := cmd.Execute(); err == nil {
			t.Error("expected error without secret")
		}
	})
}

func TestNewHandler(t *testing.T) {
	t.Setenv("ELEVEN_LABS_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	logger := zap.NewNop()
	ctx := context.Background()

	tests := []struct {
		name       string
		workerType entities.WorkerType
		backend    string
		wantErr    bool
	}{
		{"mock stt", entities.WorkerTypeSTT, backendMock, false},
		{"mock router", entities.WorkerTypeRouter, backendMock, false},
		{"mock llm", entities.WorkerTypeLLM, backendMock, false},
		{"mock tts", entities.WorkerTypeTTS, backendMock, false},
		{"gemini cannot transcribe", entities.WorkerTypeSTT, backendGemini, true},
		{"gemini without key", entities.WorkerTypeLLM, backendGemini, true},
		{"elevenlabs without key", entities.WorkerTypeTTS, backendElevenLabs, true},
		{"google cannot speak", entities.WorkerTypeTTS, backendGoogle, true},
		{"unknown backend", entities.WorkerTypeLLM, "openai", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, model, err := newHandler(ctx, tt.workerType, tt.backend, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newHandler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (handler == nil || model == "") {
				t.Errorf("expected handler and model, got %v %q", handler, model)
			}
		})
	}
}

func TestServeCmdRequiresType(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	cmd.SetArgs([]string{"serve"})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error when --type is missing")
	}
}

func TestSpecialityField(t *testing.T) {
	if got := specialityField(entities.SpecialityNone); got != "" {
		t.Errorf("expected empty field, got %q", got)
	}
	if got := specialityField(entities.SpecialityCoding | entities.SpecialityGeneral); got != "General|Coding" {
		t.Errorf("unexpected field %q", got)
	}
}
