// Package tools implements the local tool source: in-process tools that run
// directly inside the agent without any transport.
//
// Design principles:
//   - Type safety via generics: New[In] derives the JSON schema from the
//     input struct at construction time.
//   - Type erasure for storage: a Set holds heterogeneous tools behind a
//     uniform call signature.
//   - Tools return plain text. Failures that the model should see are
//     returned as errors and surfaced to it as error tool results.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Definition describes a callable tool as presented to the model.
type Definition struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Tool couples a definition with its type-erased handler.
type Tool struct {
	def     Definition
	handler func(ctx context.Context, args json.RawMessage) (string, error)
}

// Definition returns the tool's model-facing description.
func (t Tool) Definition() Definition {
	return t.def
}

// New creates a tool with type-safe input handling. The JSON schema for the
// input struct In is derived via reflection at construction time, so schema
// errors surface at startup rather than mid-conversation.
func New[In any](name, description string, fn func(context.Context, In) (string, error)) (Tool, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return Tool{}, fmt.Errorf("deriving schema for tool %s: %w", name, err)
	}

	handler := func(ctx context.Context, args json.RawMessage) (string, error) {
		var input In
		if len(args) > 0 {
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("invalid arguments for tool %s: %w", name, err)
			}
		}
		return fn(ctx, input)
	}

	return Tool{
		def: Definition{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		handler: handler,
	}, nil
}

// Set is an immutable, ordered collection of local tools.
type Set struct {
	tools []Tool
	index map[string]int
}

// NewSet builds a set from the given tools. Duplicate names are rejected.
func NewSet(ts ...Tool) (*Set, error) {
	index := make(map[string]int, len(ts))
	for i, t := range ts {
		if t.def.Name == "" {
			return nil, fmt.Errorf("tool at position %d has no name", i)
		}
		if _, exists := index[t.def.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", t.def.Name)
		}
		index[t.def.Name] = i
	}
	return &Set{tools: ts, index: index}, nil
}

// Definitions returns the tool definitions in registration order.
func (s *Set) Definitions() []Definition {
	defs := make([]Definition, len(s.tools))
	for i, t := range s.tools {
		defs[i] = t.def
	}
	return defs
}

// Owns reports whether the set contains a tool with the given name.
func (s *Set) Owns(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Call executes the named tool with raw JSON arguments.
func (s *Set) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	i, ok := s.index[name]
	if !ok {
		return "", fmt.Errorf("tool %q not found in local set", name)
	}
	return s.tools[i].handler(ctx, args)
}
