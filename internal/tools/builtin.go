package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// RegisterBuiltins registers the built-in tool set.
func RegisterBuiltins(reg *Registry, httpCfg HTTPConfig) error {
	builtins := []Tool{
		&EchoTool{},
		&TimeNowTool{},
		NewJSONQueryTool(),
		NewHTTPRequestTool(httpCfg),
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// EchoTool returns its arguments unchanged. Useful for wiring tests and for
// agents that only need to shape data.
type EchoTool struct{}

func (t *EchoTool) Name() string        { return "echo" }
func (t *EchoTool) Description() string { return "Return the provided arguments unchanged." }

func (t *EchoTool) InputSchema() json.RawMessage { return nil }

func (t *EchoTool) Call(_ context.Context, args map[string]any) (any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	return args, nil
}

// TimeNowTool returns the current time. Accepts an optional "format"
// argument using Go reference-time layout; defaults to RFC 3339.
type TimeNowTool struct{}

func (t *TimeNowTool) Name() string        { return "time.now" }
func (t *TimeNowTool) Description() string { return "Return the current UTC time as a string." }

func (t *TimeNowTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "format": {"type": "string"}
  }
}`)
}

func (t *TimeNowTool) Call(_ context.Context, args map[string]any) (any, error) {
	layout := time.RFC3339
	if f, ok := args["format"].(string); ok && f != "" {
		layout = f
	}
	return time.Now().UTC().Format(layout), nil
}

// JSONQueryTool runs a jq expression against a data argument. It lets agents
// reshape structured tool output without a script node.
type JSONQueryTool struct {
	engine *expressions.GoJQEngine
}

// NewJSONQueryTool creates a json.query tool with its own program cache.
func NewJSONQueryTool() *JSONQueryTool {
	return &JSONQueryTool{engine: expressions.NewGoJQEngine()}
}

func (t *JSONQueryTool) Name() string { return "json.query" }

func (t *JSONQueryTool) Description() string {
	return "Apply a jq expression to the given data and return the result."
}

func (t *JSONQueryTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string"},
    "data": {}
  },
  "required": ["query"]
}`)
}

func (t *JSONQueryTool) Call(ctx context.Context, args map[string]any) (any, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "json.query: missing required argument 'query'")
	}

	data, ok := args["data"].(map[string]any)
	if !ok {
		// jq input must be an object for the engine; wrap other shapes.
		data = map[string]any{"data": args["data"]}
		query = ".data | (" + query + ")"
	}

	result, err := t.engine.Evaluate(ctx, query, data)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTool, "json.query failed").WithCause(err)
	}
	return result, nil
}
