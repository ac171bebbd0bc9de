package nodes

import (
	"context"
	"strconv"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// ConditionExecutor evaluates the node's expression and records the selected
// branch value. Picking the successor is the walker's job.
type ConditionExecutor struct {
	expr *expressions.ExprEngine
	cel  *expressions.CELEngine
}

func (e *ConditionExecutor) Kind() schema.NodeKind { return schema.NodeKindCondition }

func (e *ConditionExecutor) Execute(ctx context.Context, node *schema.Node, ec *engine.ExecContext) schema.NodeResult {
	result := begin(node)

	var cfg schema.ConditionConfig
	if err := decodeConfig(node, &cfg); err != nil {
		return fail(&result, err)
	}
	if cfg.Expression == "" {
		return fail(&result, schema.NewErrorf(schema.ErrCodeValidation,
			"condition node %q has no expression", node.ID).WithNode(node.ID))
	}

	var engineImpl expressions.Engine
	switch cfg.Lang {
	case "", "expr":
		engineImpl = e.expr
	case "cel":
		engineImpl = e.cel
	default:
		return fail(&result, schema.NewErrorf(schema.ErrCodeValidation,
			"condition node %q: unknown expression language %q", node.ID, cfg.Lang).WithNode(node.ID))
	}

	result.Input = cfg.Expression
	value, err := engineImpl.Evaluate(ctx, cfg.Expression, ec.Scope())
	if err != nil {
		return fail(&result, err)
	}

	result.Branch = branchValue(value)
	result.Output = value
	return done(&result)
}

// branchValue renders an evaluated condition result as an edge label.
// Booleans become "true"/"false" so two-way conditions read naturally;
// strings pass through for enum-style multi-way branching.
func branchValue(value any) string {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return ""
	}
}
