package tools

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"folioagent/pkg/errors"
	"folioagent/pkg/logger"
)

type entry struct {
	tool    Tool
	schema  *jsonschema.Schema
	enabled bool
}

// Registry stores tools by name in registration order.
// It is filled at startup and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*entry
	log   *logger.Logger
}

// NewRegistry constructs an empty tool registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		tools: make(map[string]*entry),
		log:   log.With("component", "tool_registry"),
	}
}

// RegisterOption adjusts a registration
type RegisterOption func(*entry)

// Disabled registers the tool without exposing it to the model.
func Disabled() RegisterOption {
	return func(e *entry) { e.enabled = false }
}

// Register adds a tool. A second registration under the same name replaces the
// first one but keeps its position.
func (r *Registry) Register(t Tool, opts ...RegisterOption) error {
	def := t.Definition()
	if def.Name == "" {
		return errors.NewValidationError("name", "tool name is required", def.Name)
	}

	sch, err := compileSchema(def)
	if err != nil {
		return err
	}

	e := &entry{tool: t, schema: sch, enabled: true}
	for _, opt := range opts {
		opt(e)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		r.log.Warnw("tool registered twice, replacing", "tool", def.Name)
	} else {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = e
	return nil
}

// SetEnabled toggles a registered tool. Unknown names are ignored.
func (r *Registry) SetEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tools[name]; ok {
		e.enabled = enabled
	}
}

// Definitions returns definitions of enabled tools in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		if e := r.tools[name]; e.enabled {
			defs = append(defs, e.tool.Definition())
		}
	}
	return defs
}

// Get retrieves a tool if it is registered and enabled.
func (r *Registry) Get(name string) (Tool, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// IsEnabled reports whether name is registered and enabled.
func (r *Registry) IsEnabled(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Names returns the names of enabled tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.tools[name].enabled {
			names = append(names, name)
		}
	}
	return names
}

// Execute validates input against the tool's schema and runs it.
// Unknown or disabled names fail with ErrUnknownTool without running anything.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage, tc ToolContext) (interface{}, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, errors.ErrUnknownTool
	}
	if err := validateInput(e.schema, input); err != nil {
		return nil, err
	}
	return e.tool.Execute(ctx, input, tc)
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.tools[name]
	if !ok || !e.enabled {
		return nil, false
	}
	return e, true
}
