package expressions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// Interpolator resolves {{...}} references in prompt templates, tool
// arguments, and terminal output expressions. References are dotted paths
// into the run scope: input, vars.<name>, nodes.<id>.output, run.id.
type Interpolator struct{}

// NewInterpolator creates a new Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{}
}

// Resolve replaces every {{ path }} token in the template with the value at
// that path in the scope. The result is always a string: non-string values
// are embedded as compact JSON. Unresolvable paths are errors — silent
// empty-string substitution hides authoring bugs.
func (interp *Interpolator) Resolve(template string, scope map[string]any) (string, error) {
	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}

		result.WriteString(template[i : i+idx])
		start := i + idx + 2

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.ErrCodeInterpolation, "unclosed {{ expression")
		}
		end += start

		path := strings.TrimSpace(template[start:end])
		if path == "" {
			return "", schema.NewError(schema.ErrCodeInterpolation, "empty variable reference: {{ }}")
		}
		if strings.Contains(path, "{{") {
			return "", schema.NewError(schema.ErrCodeInterpolation,
				"nested interpolation not allowed: {{...}} cannot contain {{")
		}

		val, err := interp.lookup(path, scope)
		if err != nil {
			return "", err
		}
		result.WriteString(stringify(val))

		i = end + 2
	}

	return result.String(), nil
}

// ResolveValue walks an arbitrary value and interpolates every string it
// contains. A string that is exactly one {{ path }} token resolves to the
// referenced value with its type preserved; strings with surrounding text
// resolve via Resolve. Maps and slices are rebuilt, other types pass through.
func (interp *Interpolator) ResolveValue(value any, scope map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if path, sole := soleToken(v); sole {
			return interp.lookup(path, scope)
		}
		return interp.Resolve(v, scope)

	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			resolved, err := interp.ResolveValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := interp.ResolveValue(item, scope)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	default:
		return value, nil
	}
}

// soleToken reports whether s is exactly one {{ path }} token and returns
// the inner path if so.
func soleToken(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return "", false
	}
	inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
	if inner == "" || strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
		return "", false
	}
	return inner, true
}

// lookup resolves a dotted path against the scope. Numeric segments index
// into slices.
func (interp *Interpolator) lookup(path string, scope map[string]any) (any, error) {
	segments := strings.Split(path, ".")

	var current any = scope
	for i, seg := range segments {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[seg]
			if !ok {
				return nil, missingPathErr(path, segments[:i+1], node)
			}
			current = val

		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
					"invalid index %q in {{%s}}: array has %d elements", seg, path, len(node)).
					WithDetails(map[string]any{"expression": path})
			}
			current = node[idx]

		default:
			return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
				"cannot descend into %T at %q in {{%s}}", current, seg, path).
				WithDetails(map[string]any{"expression": path})
		}
	}

	return current, nil
}

// missingPathErr builds an actionable error listing the keys available at
// the failing depth.
func missingPathErr(path string, consumed []string, at map[string]any) *schema.EngineError {
	keys := make([]string, 0, len(at))
	for k := range at {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return schema.NewErrorf(schema.ErrCodeInterpolation,
		"unresolved reference {{%s}}: %q not found; available: %s",
		path, consumed[len(consumed)-1], strings.Join(keys, ", ")).
		WithDetails(map[string]any{"expression": path, "available": keys})
}

// stringify renders a resolved value for embedding into a template string.
func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
