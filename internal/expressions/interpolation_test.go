package expressions

import (
	"errors"
	"strings"
	"testing"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

func interpScope() map[string]any {
	return map[string]any{
		"input": "write a haiku",
		"vars": map[string]any{
			"lastOutput": "five syllables here",
			"count":      float64(3),
			"flag":       true,
			"items":      []any{"a", "b", "c"},
		},
		"nodes": map[string]any{
			"draft": map[string]any{"output": "rough text"},
		},
		"run": map[string]any{"id": "run-42"},
	}
}

func TestInterpolator_Resolve(t *testing.T) {
	interp := NewInterpolator()

	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"no placeholders", "plain text", "plain text"},
		{"input reference", "Task: {{ input }}", "Task: write a haiku"},
		{"var reference", "Last: {{ vars.lastOutput }}", "Last: five syllables here"},
		{"node output", "Draft was {{ nodes.draft.output }}", "Draft was rough text"},
		{"numeric rendering", "count={{ vars.count }}", "count=3"},
		{"bool rendering", "flag={{ vars.flag }}", "flag=true"},
		{"slice index", "first={{ vars.items.0 }}", "first=a"},
		{"multiple placeholders", "{{ run.id }}: {{ input }}", "run-42: write a haiku"},
		{"no inner whitespace", "{{input}}", "write a haiku"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := interp.Resolve(tc.template, interpScope())
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestInterpolator_UnresolvedPathFails(t *testing.T) {
	interp := NewInterpolator()

	_, err := interp.Resolve("value: {{ vars.nope }}", interpScope())
	var engErr *schema.EngineError
	if !errors.As(err, &engErr) || engErr.Code != schema.ErrCodeInterpolation {
		t.Fatalf("expected INTERPOLATION_ERROR, got %v", err)
	}
	if !strings.Contains(engErr.Message, "vars.nope") {
		t.Errorf("error should name the missing path: %v", engErr)
	}
}

func TestInterpolator_SoleTokenPreservesType(t *testing.T) {
	interp := NewInterpolator()

	got, err := interp.ResolveValue("{{ vars.count }}", interpScope())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != float64(3) {
		t.Errorf("sole token should keep the native type, got %T (%v)", got, got)
	}
}

func TestInterpolator_ResolveValueRecurses(t *testing.T) {
	interp := NewInterpolator()

	in := map[string]any{
		"query":  "{{ input }}",
		"nested": map[string]any{"run": "{{ run.id }}"},
		"list":   []any{"{{ vars.flag }}", "static"},
		"number": float64(9),
	}

	got, err := interp.ResolveValue(in, interpScope())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	m := got.(map[string]any)
	if m["query"] != "write a haiku" {
		t.Errorf("query: %v", m["query"])
	}
	if m["nested"].(map[string]any)["run"] != "run-42" {
		t.Errorf("nested: %v", m["nested"])
	}
	list := m["list"].([]any)
	if list[0] != true || list[1] != "static" {
		t.Errorf("list: %v", list)
	}
	if m["number"] != float64(9) {
		t.Errorf("number passthrough: %v", m["number"])
	}
}
