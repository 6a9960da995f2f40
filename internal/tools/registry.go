// Package tools implements the ToolRegistry (spec.md §4.1): a fixed,
// immutable-after-startup set of named tools the PTAV loop invokes to
// introspect schema, resolve time windows, and validate/execute/refine SQL.
package tools

import (
	"context"
	"fmt"
	"time"
)

// Tool is a capability registered under a stable name.
type Tool interface {
	Name() string
	Description() string
	// InputSchema documents expected field names/types for the planner
	// prompt; it is descriptive only; actual validation happens in Execute.
	InputSchema() map[string]string
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Registry dispatches execute(input) by tool name. Immutable after Freeze;
// lookup failures are fatal to the current step (reported, not retried),
// per spec.md §4.1.
type Registry struct {
	tools  map[string]Tool
	frozen bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its own Name(). Panics if called after Freeze,
// since the registry is defined to be immutable once the pipeline starts.
func (r *Registry) Register(t Tool) {
	if r.frozen {
		panic("tools: cannot register after Freeze")
	}
	r.tools[t.Name()] = t
}

// Freeze marks the registry read-only; safe to share across goroutines
// after this point.
func (r *Registry) Freeze() { r.frozen = true }

// Get resolves name to its Tool.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tools: no such tool %q", name)
	}
	return t, nil
}

// Descriptor is one tool's name and description for the planner prompt.
type Descriptor struct {
	Name        string
	Description string
}

// Describe lists every registered tool's name/description for the Planner
// prompt (spec.md §4.3 prompt shape item 3). The order follows Go map
// iteration and is not fixed between calls.
func (r *Registry) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Descriptor{Name: t.Name(), Description: t.Description()})
	}
	return out
}

// Execute looks up name and invokes it, measuring elapsed time. Returns the
// tool's raw result map; callers (StepExecutor) wrap it into an Observation.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (map[string]any, time.Duration, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, 0, err
	}
	start := time.Now()
	out, err := t.Execute(ctx, input)
	return out, time.Since(start), err
}
