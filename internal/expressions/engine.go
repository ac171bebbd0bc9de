package expressions

import "context"

// Engine evaluates expressions against a run scope.
// Three implementations: Expr (conditions, default), CEL (conditions,
// opt-in per node), GoJQ (tool argument mapping and transforms).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
