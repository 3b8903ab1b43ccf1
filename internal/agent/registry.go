package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
)

// ErrToolNotFound is returned by Execute when the requested capability is
// not registered. The orchestration loop absorbs it into an error result
// instead of failing the exchange, since the model can hallucinate names.
var ErrToolNotFound = errors.New("tool not found")

// Tool is one named capability the orchestrator may invoke on behalf of the
// model. Implementations decode and validate their own argument shape and
// always return a well-formed Result.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Call(ctx context.Context, args json.RawMessage) Result
}

// Registry is a static catalog of capabilities. One registry is built per
// orchestration invocation with the caller's identity bound into each tool,
// so a handler can never act on another owner's data. It is immutable once
// constructed.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from the given tools. Duplicate names are
// rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists {
			return nil, fmt.Errorf("duplicate tool name: %s", t.Name())
		}
		r.tools[t.Name()] = t
		r.order = append(r.order, t.Name())
	}
	return r, nil
}

// Resolve returns the named tool, if registered
func (r *Registry) Resolve(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Catalog returns the tool definitions in registration order, shaped for
// the model's tool-advertisement mechanism.
func (r *Registry) Catalog() []llms.Tool {
	catalog := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		catalog = append(catalog, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return catalog
}

// Execute resolves and invokes the named tool. An unknown name returns
// ErrToolNotFound. A panicking handler is recovered into an
// execution_error result rather than crashing the loop.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (result Result, err error) {
	tool, ok := r.Resolve(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Str("tool", name).
				Interface("panic", rec).
				Msg("Tool handler panicked")
			result = Failure(CategoryExecutionError, "tool execution failed")
			err = nil
		}
	}()

	return tool.Call(ctx, args), nil
}
