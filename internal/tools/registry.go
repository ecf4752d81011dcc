package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tmc/langchaingo/llms"
)

// Tool is a function a specialist model can call.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() map[string]any
	// Call runs the tool. Failures are returned as text for the model.
	Call(ctx context.Context, scope Scope, args json.RawMessage) string
}

// Definition converts a tool into the langchaingo tool-calling form.
func Definition(t Tool) llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Registry holds tools by name.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// RegisterAll returns a registry with every built-in tool.
func RegisterAll(deps *Dependencies) *Registry {
	r := NewRegistry()
	r.Register(NewCashflowBalance(deps))
	r.Register(NewCashflowCategories(deps))
	r.Register(NewAddCashflowTransaction(deps))
	r.Register(NewCashflowSummary(deps))
	r.Register(NewRecallMemories(deps))
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the named tools in order, failing on the first unknown name.
func (r *Registry) Select(names []string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		out = append(out, t)
	}
	return out, nil
}
