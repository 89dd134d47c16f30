// Package tool provides the fixed tool registry shared by the chat engine.
//
// A Registry binds each tool name to exactly one handler and one JSON-schema
// definition. Both views stay in sync by construction: Definitions returns
// the schema list handed to the language model, and Dispatch routes a model
// tool call to the matching handler. Registries are populated once at startup
// and are read-only afterwards, which makes them safe for concurrent use.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/emporia-ai/clerk/internal/thread"
	"github.com/emporia-ai/clerk/pkg/provider/llm"
)

// ErrUnknownTool is returned by Dispatch when the requested tool name is not
// registered. The chat engine reports it into the transcript rather than
// failing the turn.
var ErrUnknownTool = errors.New("tool: unknown tool")

// ArgumentError reports tool arguments that failed to decode or failed schema
// validation. Like ErrUnknownTool it is recovered locally: the engine feeds
// the error text back to the model so it can self-correct.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tool: %s: invalid arguments: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// DirectReturn is the control signal raised by a handler to stop the chat
// loop and hand the carried message straight to the user, bypassing any
// further model calls. It satisfies the error interface so handlers can
// return it through the normal dispatch path, but it is not a fault:
// callers detect it with errors.As and treat it as an early exit.
type DirectReturn struct {
	Message thread.Message
}

func (d *DirectReturn) Error() string {
	return fmt.Sprintf("tool: direct return: %q", d.Message.Content)
}

// Handler executes one tool call. args is the raw JSON-encoded argument
// object from the model; the returned string becomes the tool-result message
// content.
type Handler func(ctx context.Context, args string) (string, error)

// Registry is the process-wide mapping from tool name to schema + handler.
// The zero value is not usable; create instances with New.
type Registry struct {
	order    []string
	handlers map[string]Handler
	defs     map[string]llm.ToolDefinition
}

// New returns an empty, ready-to-use Registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		defs:     make(map[string]llm.ToolDefinition),
	}
}

// Register binds def.Name to the given handler and schema. Registering an
// empty name, a nil handler, or a duplicate name is a programming error and
// fails immediately.
func (r *Registry) Register(def llm.ToolDefinition, h Handler) error {
	if def.Name == "" {
		return errors.New("tool: definition must have a non-empty name")
	}
	if h == nil {
		return fmt.Errorf("tool: %s: handler must not be nil", def.Name)
	}
	if _, ok := r.handlers[def.Name]; ok {
		return fmt.Errorf("tool: %s: already registered", def.Name)
	}
	r.order = append(r.order, def.Name)
	r.handlers[def.Name] = h
	r.defs[def.Name] = def
	return nil
}

// Definitions returns the tool schema list in registration order. This is the
// model-facing view of the registry; every entry has a matching handler.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.defs[name])
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Dispatch executes the named tool with the given JSON arguments.
//
// An unregistered name fails with an error wrapping ErrUnknownTool. Handler
// errors, including ArgumentError and DirectReturn, pass through unchanged
// for the caller to classify.
// A panicking handler is recovered and reported as an ordinary error.
func (r *Registry) Dispatch(ctx context.Context, name string, args string) (result string, err error) {
	h, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = ""
			err = fmt.Errorf("tool: %s: handler panic: %v", name, rec)
		}
	}()
	return h(ctx, args)
}

// DecodeArgs unmarshals a tool-call argument payload into v. An empty payload
// decodes as an empty object. Decode failures are wrapped in *ArgumentError
// so the engine recovers them locally instead of crashing the loop.
func DecodeArgs(toolName string, args string, v any) error {
	if args == "" {
		args = "{}"
	}
	dec := json.NewDecoder(strings.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ArgumentError{Tool: toolName, Err: err}
	}
	return nil
}
