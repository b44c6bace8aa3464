package tools

import (
	"context"
	"encoding/json"

	"folioagent/pkg/errors"
)

// Definition is the model-facing description of a tool
type Definition struct {
	Name        string
	Description string
	// InputSchema is a JSON schema object describing the tool input
	InputSchema map[string]interface{}
}

// ToolContext carries the caller's identity to every tool invocation.
// It is built once per request and never mutated.
type ToolContext struct {
	UserID          string
	BaseCurrency    string
	ImpersonationID string
	AccountID       string
	AccessToken     string
}

// Tool represents a callable capability exposed to the model.
type Tool interface {
	// Definition returns the name, description and input schema.
	Definition() Definition
	// Execute performs the tool's action. input is the raw JSON object from the model.
	Execute(ctx context.Context, input json.RawMessage, tc ToolContext) (interface{}, error)
}

// HandlerFunc is the function signature for tool handlers.
type HandlerFunc func(ctx context.Context, input json.RawMessage, tc ToolContext) (interface{}, error)

// FunctionTool is a simple Tool implementation backed by a handler function.
type FunctionTool struct {
	def     Definition
	handler HandlerFunc
}

// New creates a new function-backed Tool.
func New(def Definition, handler HandlerFunc) Tool {
	return &FunctionTool{def: def, handler: handler}
}

// Definition returns the tool definition.
func (t *FunctionTool) Definition() Definition { return t.def }

// Execute runs the underlying handler.
func (t *FunctionTool) Execute(ctx context.Context, input json.RawMessage, tc ToolContext) (interface{}, error) {
	if t.handler == nil {
		return nil, errors.Newf("tool %s handler is not defined", t.def.Name)
	}
	return t.handler(ctx, input, tc)
}

// DecodeInput unmarshals input into dst. Empty input decodes as an empty object.
func DecodeInput(input json.RawMessage, dst interface{}) error {
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, err.Error())
	}
	return nil
}
