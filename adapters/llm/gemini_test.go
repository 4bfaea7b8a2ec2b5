package llm

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
)

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"valid", GeminiConfig{APIKey: "key"}, false},
		{"missing key", GeminiConfig{}, true},
		{"negative timeout", GeminiConfig{APIKey: "key", TimeoutSeconds: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeminiConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGeminiConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestToContents_CurrentTurnPrecedesPendingTools(t *testing.T) {
	now := time.Now()
	events := []entities.ChatEvent{
		entities.NewUserMessage("hi", now),
		entities.NewAssistantMessage("hello", now),
		entities.NewToolCall("get_weather", []byte(`{"location":"Jakarta"}`), now),
		entities.NewToolResult("get_weather", "sunny", now),
	}

	contents := toContents(events, "weather?")
	if len(contents) != 5 {
		t.Fatalf("expected 5 contents, got %d", len(contents))
	}

	expected := []string{genai.RoleUser, genai.RoleModel, genai.RoleUser, genai.RoleModel, genai.RoleUser}
	for i, role := range expected {
		if contents[i].Role != role {
			t.Errorf("content %d: expected role %s, got %s", i, role, contents[i].Role)
		}
	}
	if contents[2].Parts[0].Text != "weather?" {
		t.Errorf("expected current text at index 2, got %q", contents[2].Parts[0].Text)
	}
	call := contents[3].Parts[0].FunctionCall
	if call == nil || call.Name != "get_weather" || call.Args["location"] != "Jakarta" {
		t.Errorf("unexpected function call %+v", call)
	}
	result := contents[4].Parts[0].FunctionResponse
	if result == nil || result.Response["output"] != "sunny" {
		t.Errorf("unexpected function response %+v", result)
	}
}

func TestToContents_MergesSameRole(t *testing.T) {
	now := time.Now()
	events := []entities.ChatEvent{
		entities.NewUserMessage("one", now),
		entities.NewToolResult("lookup", "x", now),
		entities.NewUserMessage("two", now),
	}

	contents := toContents(events, "three")
	if len(contents) != 1 {
		t.Fatalf("expected a single merged content, got %d", len(contents))
	}
	if len(contents[0].Parts) != 4 {
		t.Errorf("expected 4 parts, got %d", len(contents[0].Parts))
	}
}

func TestToTools(t *testing.T) {
	if toTools(nil) != nil {
		t.Error("expected no tools for empty definitions")
	}

	tools := toTools([]entities.ToolDefinition{{
		Name:        "get_weather",
		Description: "Weather lookup",
		Parameters: []entities.ToolParameter{
			{Name: "location", Type: "string", Required: true},
			{Name: "unit", Type: "string", Enum: []string{"celsius", "fahrenheit"}},
			{Name: "days", Type: "integer"},
		},
	}})
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("unexpected tools %+v", tools)
	}
	params := tools[0].FunctionDeclarations[0].Parameters
	if len(params.Required) != 1 || params.Required[0] != "location" {
		t.Errorf("unexpected required %v", params.Required)
	}
	if params.Properties["days"].Type != genai.TypeInteger {
		t.Errorf("expected integer days, got %s", params.Properties["days"].Type)
	}
	if len(params.Properties["unit"].Enum) != 2 {
		t.Errorf("expected unit enum, got %v", params.Properties["unit"].Enum)
	}
}

func TestFromResponse(t *testing.T) {
	response := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{
			{Text: "thinking", Thought: true},
			{Text: "Let me check. "},
			genai.NewPartFromFunctionCall("get_weather", map[string]any{"location": "Bali"}),
		}},
	}}}

	out, err := fromResponse(response)
	if err != nil {
		t.Fatalf("fromResponse failed: %v", err)
	}
	if out.Text != "Let me check." {
		t.Errorf("unexpected text %q", out.Text)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Arguments["location"] != "Bali" {
		t.Errorf("unexpected tool calls %+v", out.ToolCalls)
	}

	if _, err := fromResponse(&genai.GenerateContentResponse{}); !errors.Is(err, errEmptyResponse) {
		t.Errorf("expected errEmptyResponse, got %v", err)
	}
}

func TestGemini_Integration(t *testing.T) {
	config := NewGeminiConfigFromEnv()
	if config.APIKey == "" || os.Getenv("GEMINI_INTEGRATION") == "" {
		t.Skip("Skipping integration test: GEMINI_API_KEY or GEMINI_INTEGRATION not set")
	}

	ctx := context.Background()
	gemini, err := NewGemini(ctx, config, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create Gemini: %v", err)
	}

	route, err := gemini.Route(ctx, domain.RouterInput{Text: "Turn off the kitchen lights"},
		domain.RouterConfig{AllowedSpecialities: entities.SpecialityNames()})
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	t.Logf("Routed to %s (%.2f): %s", route.Speciality, route.Confidence, route.Reason)

	out, err := gemini.Generate(ctx, domain.LlmInput{Text: "Say hello in one word."},
		domain.LlmConfig{MaxTokens: 64, Temperature: entities.DefaultTemperature})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out.Text == "" {
		t.Error("expected non-empty text")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 50, "hello"},
		{"hello", 4, "hell"},
		{"Cuaca di Jakarta cerah ☀️ hari ini", 24, "Cuaca di Jakarta cerah ☀"},
		{"こんにちは", 2, "こん"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want || !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
