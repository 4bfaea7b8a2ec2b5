package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/arunika-core/domain/entities"
)

// RegisterBuiltins adds the tools every deployment ships with
func RegisterBuiltins(c *Catalog, now func() time.Time) error {
	builtins := []Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a given location.",
			Speciality:  entities.SpecialityAll,
			Parameters: []entities.ToolParameter{
				{Name: "location", Type: "string", Description: "The City to get the weather for", Required: true},
				{Name: "unit", Type: "string", Description: "The unit of temperature (Celsius or Fahrenheit)",
					Enum: []string{"Celsius", "Fahrenheit"}, Default: "Celsius"},
			},
			Handler: getWeather,
		},
		{
			Name:        "get_time",
			Description: "Get the current local time.",
			Speciality:  entities.SpecialityAll,
			Parameters: []entities.ToolParameter{
				{Name: "timezone", Type: "string", Description: "IANA timezone name, e.g. Europe/Berlin", Default: "UTC"},
			},
			Handler: getTime(now),
		},
	}

	for _, tool := range builtins {
		if err := c.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func getWeather(_ context.Context, args map[string]any) (string, error) {
	location, _ := args["location"].(string)
	if strings.TrimSpace(location) == "" {
		return "", fmt.Errorf("location must be a non-empty string")
	}
	unit, _ := args["unit"].(string)
	switch strings.ToLower(unit) {
	case "fahrenheit":
		return fmt.Sprintf("The current weather in %s is 77° Fahrenheit.", location), nil
	default:
		return fmt.Sprintf("The current weather in %s is 25° Celsius.", location), nil
	}
}

func getTime(now func() time.Time) Handler {
	return func(_ context.Context, args map[string]any) (string, error) {
		name, _ := args["timezone"].(string)
		loc, err := time.LoadLocation(name)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", name)
		}
		return now().In(loc).Format("Monday 15:04"), nil
	}
}
