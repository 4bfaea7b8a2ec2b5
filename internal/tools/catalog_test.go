package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/satriahrh/arunika-core/domain/entities"
)

func echoHandler(_ context.Context, args map[string]any) (string, error) {
	data, err := json.Marshal(args)
	return string(data), err
}

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()

	if err := c.Register(Tool{Name: "a", Handler: echoHandler}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := c.Register(Tool{Name: "a", Handler: echoHandler}); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Expected ErrDuplicateTool, got %v", err)
	}
	if err := c.Register(Tool{Name: "", Handler: echoHandler}); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := c.Register(Tool{Name: "b"}); err == nil {
		t.Error("Expected error for nil handler")
	}
}

func TestCatalog_ForSpeciality(t *testing.T) {
	c := NewCatalog()
	c.Register(Tool{Name: "lights", Speciality: entities.SpecialityHomeControl, Handler: echoHandler})
	c.Register(Tool{Name: "run_tests", Speciality: entities.SpecialityCoding, Handler: echoHandler})
	c.Register(Tool{Name: "clock", Speciality: entities.SpecialityAll, Handler: echoHandler})

	tests := []struct {
		speciality entities.Speciality
		want       string
	}{
		{entities.SpecialityHomeControl, "clock,lights"},
		{entities.SpecialityCoding, "clock,run_tests"},
		{entities.SpecialityGeneral, "clock"},
	}

	for _, tt := range tests {
		t.Run(tt.speciality.String(), func(t *testing.T) {
			var names []string
			for _, d := range c.Definitions(tt.speciality) {
				names = append(names, d.Name)
			}
			if got := strings.Join(names, ","); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCatalog_Invoke(t *testing.T) {
	c := NewCatalog()
	c.Register(Tool{
		Name: "greet",
		Parameters: []entities.ToolParameter{
			{Name: "name", Type: "string", Required: true},
			{Name: "greeting", Type: "string", Default: "hello"},
		},
		Handler: echoHandler,
	})

	got, err := c.Invoke(context.Background(), "greet", json.RawMessage(`{"name":"ada"}`))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != `{"greeting":"hello","name":"ada"}` {
		t.Errorf("Unexpected result %s", got)
	}

	if _, err := c.Invoke(context.Background(), "greet", json.RawMessage(`{}`)); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("Expected ErrMissingArgument, got %v", err)
	}
	if _, err := c.Invoke(context.Background(), "greet", json.RawMessage(`[1]`)); !errors.Is(err, ErrInvalidArguments) {
		t.Errorf("Expected ErrInvalidArguments, got %v", err)
	}
	if _, err := c.Invoke(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Expected ErrUnknownTool, got %v", err)
	}
}

func TestBuiltins(t *testing.T) {
	c := NewCatalog()
	fixed := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	if err := RegisterBuiltins(c, func() time.Time { return fixed }); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	weather, err := c.Invoke(context.Background(), "get_weather", json.RawMessage(`{"location":"Jakarta"}`))
	if err != nil {
		t.Fatalf("get_weather: %v", err)
	}
	if weather != "The current weather in Jakarta is 25° Celsius." {
		t.Errorf("Unexpected weather %q", weather)
	}

	clock, err := c.Invoke(context.Background(), "get_time", nil)
	if err != nil {
		t.Fatalf("get_time: %v", err)
	}
	if clock != "Monday 14:30" {
		t.Errorf("Unexpected time %q", clock)
	}

	if err := RegisterBuiltins(c, time.Now); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Registering builtins twice should fail, got %v", err)
	}
}
