// Package agent converts free-form user intent into structured actions and
// executes them against the negotiation engine and the browser.
package agent

import (
	"context"
	"fmt"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/llm"
)

// Handler executes one action. It returns a short human-readable outcome, or
// an error which the dispatcher renders as a failure line.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Action is one entry in the fixed catalog: a name, a JSON-schema shaped
// parameter description shown to the model, and the handler.
type Action struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     Handler
}

// Registry holds the action catalog in registration order.
type Registry struct {
	order   []string
	actions map[string]*Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Action)}
}

// Register adds an action. Re-registering a name replaces the handler but
// keeps its position.
func (r *Registry) Register(a *Action) {
	if _, ok := r.actions[a.Name]; !ok {
		r.order = append(r.order, a.Name)
	}
	r.actions[a.Name] = a
}

// Get looks an action up by name.
func (r *Registry) Get(name string) (*Action, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// Names returns the catalog in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// ToolSpecs renders the catalog for the completion provider.
func (r *Registry) ToolSpecs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		a := r.actions[name]
		params := a.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, llm.ToolSpec{
			Name:        a.Name,
			Description: a.Description,
			Parameters:  params,
		})
	}
	return specs
}

// objectSchema builds the JSON-schema parameter object for an action.
func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// getStringArg extracts a string argument.
func getStringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// getFloatArg extracts a numeric argument; JSON numbers arrive as float64,
// but models occasionally send strings or ints.
func getFloatArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// getIntArg extracts an integer argument.
func getIntArg(args map[string]any, key string) (int, bool) {
	f, ok := getFloatArg(args, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}
