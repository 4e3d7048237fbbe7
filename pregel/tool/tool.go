// Package tool defines the host-side callable protocol a node uses to
// execute the tool calls an LLM requests (scenario: a ReAct-style
// agent/tools loop node).
package tool

import "context"

// Tool is something a node can invoke on the LLM's behalf: a web search, a
// database query, an HTTP call, a calculation.
type Tool interface {
	// Name must match the ToolSpec.Name advertised to the model.
	Name() string

	// Call executes the tool. input matches the tool's declared schema;
	// output is handed back to the model as the tool result.
	Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Registry resolves tool calls by name, letting a node's Callable dispatch
// an LLM's requested ToolCall without a type switch.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds a Registry from tools, indexed by Name().
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Call resolves name and invokes it, or returns an error if no such tool is
// registered.
func (r *Registry) Call(ctx context.Context, name string, input map[string]interface{}) (map[string]interface{}, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	return t.Call(ctx, input)
}

// UnknownToolError reports a ToolCall naming a tool absent from the
// Registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return "tool: unknown tool " + e.Name
}
