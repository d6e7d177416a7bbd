package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mauriffe/mcpbot/errors"
)

// Tool defines the interface for any capability the model can invoke.
type Tool interface {
	Name() string
	Description() string
	// Schema describes the tool's parameters as a JSON-schema subset.
	Schema() *Schema
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ConfirmPrompter lets a tool phrase its own confirmation question.
// Tools that do not implement it get a generic prompt built from the
// tool name and arguments.
type ConfirmPrompter interface {
	ConfirmPrompt(args map[string]interface{}) string
}

// Schema is the subset of JSON Schema the model backends understand.
type Schema struct {
	Type        string             // "object", "string", "number", "integer", "boolean", "array"
	Description string
	Properties  map[string]*Schema // for objects
	Items       *Schema            // for arrays
	Required    []string
}

// ObjectSchema builds an object schema from property name/schema pairs,
// marking every listed property as required.
func ObjectSchema(props map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: props, Required: required}
}

// JSONMap renders the schema in plain JSON Schema form, which is the
// shape the OpenAI, Anthropic and Bedrock APIs consume directly.
func (s *Schema) JSONMap() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	m := map[string]interface{}{"type": s.Type}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if s.Type == "object" {
		props := map[string]interface{}{}
		for name, p := range s.Properties {
			props[name] = p.JSONMap()
		}
		m["properties"] = props
		if len(s.Required) > 0 {
			m["required"] = s.Required
		}
	}
	if s.Items != nil {
		m["items"] = s.Items.JSONMap()
	}
	return m
}

// ToolError reports a tool executor failure. It is recoverable: the
// orchestrator feeds the message back to the model as tool-result text
// instead of terminating the session.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool '%s' failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Descriptor pairs a tool with its confirmation policy. Descriptors are
// loaded once at startup and read-only thereafter.
type Descriptor struct {
	Tool                 Tool
	RequiresConfirmation bool
}

// ConfirmPrompt returns the question shown to the operator before this
// tool may run.
func (d Descriptor) ConfirmPrompt(args map[string]interface{}) string {
	if p, ok := d.Tool.(ConfirmPrompter); ok {
		return p.ConfirmPrompt(args)
	}
	var parts []string
	for k, v := range args {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return fmt.Sprintf("Allow tool '%s' to run? (reply to confirm, or type 'cancel')", d.Tool.Name())
	}
	return fmt.Sprintf("Allow tool '%s' to run with %s? (reply to confirm, or type 'cancel')",
		d.Tool.Name(), strings.Join(parts, ", "))
}

// Registry holds all available tools. It is assembled at startup and
// never mutated afterwards, so lookups need no locking.
type Registry struct {
	order []string
	tools map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds a tool with its confirmation flag. Registering two tools
// under the same name is a configuration error.
func (r *Registry) Register(t Tool, requiresConfirmation bool) error {
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return errors.New("tool '%s' is already registered", name)
	}
	r.tools[name] = Descriptor{Tool: t, RequiresConfirmation: requiresConfirmation}
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the descriptor for a tool name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// Active returns the registered tools in registration order, which is
// the order their schemas are advertised to the model.
func (r *Registry) Active() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Tool)
	}
	return out
}

// Execute runs a tool by name. Executor failures come back as *ToolError
// so the caller can surface them to the model as result text rather than
// tearing the session down.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	d, ok := r.tools[name]
	if !ok {
		return "", &ToolError{Tool: name, Err: errors.New("not registered")}
	}
	out, err := d.Tool.Execute(ctx, args)
	if err != nil {
		return "", &ToolError{Tool: name, Err: err}
	}
	return out, nil
}
