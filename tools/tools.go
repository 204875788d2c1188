// Package tools implements the side-effect gateway: a uniform interface to
// the pluggable tools the model can invoke mid-stream (business search,
// product search). Every invocation is wrapped with error isolation so a tool
// failure surfaces as a user-visible error rather than crashing the session,
// and assembled arguments are validated against the tool's input schema
// before dispatch.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"goa.design/clue/log"

	"github.com/genui/genui/model"
)

type (
	// Tool is one pluggable capability exposed to the model.
	Tool interface {
		// Name is the identifier advertised to the model.
		Name() string
		// Description documents the tool for prompting purposes.
		Description() string
		// InputSchema is the JSON Schema object describing the tool's input.
		InputSchema() map[string]any
		// Invoke executes the tool with the assembled arguments and returns
		// its result payload.
		Invoke(ctx context.Context, args json.RawMessage) (Result, error)
	}

	// Result is a tool's payload plus the prompt fragment that embeds it
	// into the continuation request.
	Result struct {
		// Payload is the tool-specific structured result.
		Payload any
		// Prompt is the user-turn text carrying the result back to the
		// model for re-rendering.
		Prompt string
	}

	// Gateway routes tool invocations by name, validating arguments against
	// each tool's compiled schema first.
	Gateway struct {
		byName  map[string]Tool
		schemas map[string]*jsonschema.Schema
		order   []string
	}
)

// NewGateway builds a gateway over the given tools. Tool input schemas are
// compiled eagerly so schema errors surface at startup, not mid-stream.
func NewGateway(toolset ...Tool) (*Gateway, error) {
	g := &Gateway{
		byName:  make(map[string]Tool, len(toolset)),
		schemas: make(map[string]*jsonschema.Schema, len(toolset)),
	}
	for _, t := range toolset {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, ok := g.byName[name]; ok {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		schema, err := compileSchema(name, t.InputSchema())
		if err != nil {
			return nil, fmt.Errorf("tool %q schema: %w", name, err)
		}
		g.byName[name] = t
		g.schemas[name] = schema
		g.order = append(g.order, name)
	}
	return g, nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	compiler := jsonschema.NewCompiler()
	url := fmt.Sprintf("genui://tools/%s/input.json", name)
	if err := compiler.AddResource(url, schema); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

// Definitions returns the model-facing tool definitions in registration
// order.
func (g *Gateway) Definitions() []*model.ToolDefinition {
	defs := make([]*model.ToolDefinition, 0, len(g.order))
	for _, name := range g.order {
		t := g.byName[name]
		defs = append(defs, &model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return defs
}

// Invoke validates args against the named tool's schema and executes it.
// Errors never propagate beyond this boundary unwrapped: callers receive a
// classified error and a diagnostic is logged here.
func (g *Gateway) Invoke(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	t, ok := g.byName[name]
	if !ok {
		log.Errorf(ctx, ErrUnknownTool, "tool %q is not registered", name)
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		log.Errorf(ctx, err, "tool %q arguments are not valid JSON", name)
		return Result{}, fmt.Errorf("%w: %s: %w", ErrBadArguments, name, err)
	}
	if err := g.schemas[name].Validate(decoded); err != nil {
		log.Errorf(ctx, err, "tool %q arguments failed schema validation", name)
		return Result{}, fmt.Errorf("%w: %s: %w", ErrBadArguments, name, err)
	}

	res, err := t.Invoke(ctx, args)
	if err != nil {
		log.Errorf(ctx, err, "tool %q invocation failed", name)
		return Result{}, fmt.Errorf("%w: %s: %w", ErrInvocation, name, err)
	}
	return res, nil
}

// Gateway error classification.
var (
	ErrUnknownTool  = fmt.Errorf("unknown tool")
	ErrBadArguments = fmt.Errorf("invalid tool arguments")
	ErrInvocation   = fmt.Errorf("tool invocation failed")
)
