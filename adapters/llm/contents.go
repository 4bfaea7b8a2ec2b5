package llm

import (
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/satriahrh/arunika-core/domain"
	"github.com/satriahrh/arunika-core/domain/entities"
)

// toContents converts chat events to Gemini format and places text as the
// current user turn. Tool events after the last message belong to the
// current turn and therefore follow text.
func toContents(events []entities.ChatEvent, text string) []*genai.Content {
	split := len(events)
	for split > 0 {
		kind := events[split-1].Kind
		if kind == entities.ChatEventUserMessage || kind == entities.ChatEventAssistantMessage {
			break
		}
		split--
	}

	var contents []*genai.Content
	for _, e := range events[:split] {
		contents = appendPart(contents, e)
	}
	if text != "" {
		contents = appendContent(contents, genai.RoleUser, genai.NewPartFromText(text))
	}
	for _, e := range events[split:] {
		contents = appendPart(contents, e)
	}
	return contents
}

func appendPart(contents []*genai.Content, e entities.ChatEvent) []*genai.Content {
	switch e.Kind {
	case entities.ChatEventUserMessage:
		return appendContent(contents, genai.RoleUser, genai.NewPartFromText(e.Text))
	case entities.ChatEventAssistantMessage:
		return appendContent(contents, genai.RoleModel, genai.NewPartFromText(e.Text))
	case entities.ChatEventToolCall:
		var args map[string]any
		if len(e.Arguments) > 0 {
			json.Unmarshal(e.Arguments, &args)
		}
		return appendContent(contents, genai.RoleModel, genai.NewPartFromFunctionCall(e.ToolName, args))
	case entities.ChatEventToolResult:
		return appendContent(contents, genai.RoleUser,
			genai.NewPartFromFunctionResponse(e.ToolName, map[string]any{"output": e.Result}))
	default:
		return contents
	}
}

// appendContent merges consecutive parts of the same role into one content
func appendContent(contents []*genai.Content, role string, part *genai.Part) []*genai.Content {
	if n := len(contents); n > 0 && contents[n-1].Role == role {
		contents[n-1].Parts = append(contents[n-1].Parts, part)
		return contents
	}
	return append(contents, &genai.Content{Role: role, Parts: []*genai.Part{part}})
}

// toTools declares the offered tools as Gemini functions
func toTools(definitions []entities.ToolDefinition) []*genai.Tool {
	if len(definitions) == 0 {
		return nil
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(definitions))
	for _, d := range definitions {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(d.Parameters)),
		}
		for _, p := range d.Parameters {
			params.Properties[p.Name] = &genai.Schema{
				Type:        schemaType(p.Type),
				Description: p.Description,
				Enum:        p.Enum,
			}
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "number", "float":
		return genai.TypeNumber
	case "integer", "int":
		return genai.TypeInteger
	case "boolean", "bool":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// fromResponse extracts text and function calls from the first candidate
func fromResponse(response *genai.GenerateContentResponse) (domain.LlmOutput, error) {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return domain.LlmOutput{}, errEmptyResponse
	}

	var output domain.LlmOutput
	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			output.ToolCalls = append(output.ToolCalls, domain.ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		case part.Text != "" && !part.Thought:
			text.WriteString(part.Text)
		}
	}
	output.Text = strings.TrimSpace(text.String())

	if output.Text == "" && len(output.ToolCalls) == 0 {
		return domain.LlmOutput{}, errEmptyResponse
	}
	return output, nil
}
