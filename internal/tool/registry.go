package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/loopgate/loopgate/internal/provider"
)

// Registry holds registered tools and executes them by name.
// It is instance-based (not global) for better testability. The registry is
// read-mostly: registration happens at startup, execution on every turn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Definition),
	}
}

// Register adds a tool to the registry. Registering a name that already
// exists replaces the prior definition in place, keeping its position in
// the schema order. It returns ErrEmptyToolName or ErrNilExecutor on an
// unusable definition.
func (r *Registry) Register(def Definition) error {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return ErrEmptyToolName
	}
	if def.Exec == nil {
		return fmt.Errorf("%w: %s", ErrNilExecutor, name)
	}
	def.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = def
	return nil
}

// Execute looks up the tool and invokes its executor with positional
// arguments built from args in parameter declaration order; arguments
// absent from the mapping are passed as nil.
//
// An executor failure (error or panic) is caught and converted into a
// textual result of the form "Error executing <name>: <message>" so that
// one misbehaving tool does not abort the rest of a multi-tool turn. The
// only error Execute returns is ErrToolNotFound.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	positional := make([]any, len(def.Params))
	for i, p := range def.Params {
		if v, present := args[p.Name]; present {
			positional[i] = v
		}
	}

	out, err := invoke(ctx, def, positional)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %s", name, err.Error()), nil
	}
	return out, nil
}

// invoke runs the executor with panic recovery.
func invoke(ctx context.Context, def Definition, positional []any) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return def.Exec(ctx, positional...)
}

// paramSchema is the JSON Schema fragment for a single parameter.
type paramSchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// objectSchema is the JSON Schema object describing a tool's parameters.
type objectSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]paramSchema `json:"properties"`
	Required   []string               `json:"required,omitempty"`
}

// Schemas renders every registered tool as a provider.ToolDefinition, in
// registration order. The result is handed verbatim to the model call as
// the available-functions contract.
func (r *Registry) Schemas() []provider.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]provider.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name]

		schema := objectSchema{
			Type:       "object",
			Properties: make(map[string]paramSchema, len(def.Params)),
		}
		for _, p := range def.Params {
			schema.Properties[p.Name] = paramSchema{
				Type:        string(p.Type),
				Description: p.Description,
			}
			if !p.Optional {
				schema.Required = append(schema.Required, p.Name)
			}
		}

		// Marshalling a struct of strings cannot fail.
		raw, _ := json.Marshal(schema)
		defs = append(defs, provider.ToolDefinition{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  raw,
		})
	}
	return defs
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
