package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/satriahrh/arunika-core/domain/entities"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrMissingArgument  = errors.New("missing required argument")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Handler executes a tool call and returns its textual result
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Tool is a callable function offered to language models
type Tool struct {
	Name        string
	Description string
	Speciality  entities.Speciality
	Parameters  []entities.ToolParameter
	Handler     Handler
}

// Definition returns the wire form of the tool
func (t Tool) Definition() entities.ToolDefinition {
	params := make([]entities.ToolParameter, len(t.Parameters))
	copy(params, t.Parameters)
	return entities.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

// Catalog is an explicitly populated tool registry
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewCatalog() *Catalog {
	return &Catalog{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (c *Catalog) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", tool.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
	}
	c.tools[tool.Name] = tool
	return nil
}

// Get returns a tool by name
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tool, ok := c.tools[name]
	return tool, ok
}

// ForSpeciality returns the tools applicable to speciality, sorted by name
func (c *Catalog) ForSpeciality(speciality entities.Speciality) []Tool {
	c.mu.RLock()
	out := make([]Tool, 0, len(c.tools))
	for _, tool := range c.tools {
		if tool.Speciality.Has(speciality) {
			out = append(out, tool)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions returns the wire definitions of the tools for speciality
func (c *Catalog) Definitions(speciality entities.Speciality) []entities.ToolDefinition {
	tools := c.ForSpeciality(speciality)
	defs := make([]entities.ToolDefinition, len(tools))
	for i, tool := range tools {
		defs[i] = tool.Definition()
	}
	return defs
}

// Invoke runs a tool with JSON-encoded arguments. Defaults are filled in
// for absent optional parameters.
func (c *Catalog) Invoke(ctx context.Context, name string, rawArgs json.RawMessage) (string, error) {
	tool, ok := c.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args := make(map[string]any)
	if len(rawArgs) > 0 && string(rawArgs) != "null" {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
		}
	}

	for _, p := range tool.Parameters {
		if _, present := args[p.Name]; present {
			continue
		}
		if p.Required {
			return "", fmt.Errorf("%w: %s.%s", ErrMissingArgument, name, p.Name)
		}
		if p.Default != nil {
			args[p.Name] = p.Default
		}
	}

	return tool.Handler(ctx, args)
}
