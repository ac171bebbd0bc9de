package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

func TestEchoTool(t *testing.T) {
	tool := &EchoTool{}

	args := map[string]any{"message": "hi", "n": float64(2)}
	got, err := tool.Call(context.Background(), args)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	m, ok := got.(map[string]any)
	if !ok || m["message"] != "hi" || m["n"] != float64(2) {
		t.Errorf("echo mangled args: %v", got)
	}
}

func TestEchoTool_NilArgs(t *testing.T) {
	tool := &EchoTool{}

	got, err := tool.Call(context.Background(), nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if m, ok := got.(map[string]any); !ok || len(m) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestJSONQueryTool_ObjectData(t *testing.T) {
	tool := NewJSONQueryTool()

	got, err := tool.Call(context.Background(), map[string]any{
		"query": ".user.name",
		"data": map[string]any{
			"user": map[string]any{"name": "ada"},
		},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "ada" {
		t.Errorf("expected %q, got %v", "ada", got)
	}
}

func TestJSONQueryTool_NonObjectData(t *testing.T) {
	tool := NewJSONQueryTool()

	got, err := tool.Call(context.Background(), map[string]any{
		"query": "length",
		"data":  []any{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != 3 && got != float64(3) {
		t.Errorf("expected 3, got %v (%T)", got, got)
	}
}

func TestJSONQueryTool_MissingQuery(t *testing.T) {
	tool := NewJSONQueryTool()

	_, err := tool.Call(context.Background(), map[string]any{"data": map[string]any{}})
	var engErr *schema.EngineError
	if !errors.As(err, &engErr) || engErr.Code != schema.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestTimeNowTool_DefaultFormat(t *testing.T) {
	tool := &TimeNowTool{}

	got, err := tool.Call(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if s, ok := got.(string); !ok || s == "" {
		t.Errorf("expected non-empty timestamp string, got %v", got)
	}
}
