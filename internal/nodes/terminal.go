package nodes

import (
	"context"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// TerminalExecutor evaluates the final output expression. Its result output
// becomes the run's overall return value.
type TerminalExecutor struct {
	interp *expressions.Interpolator
}

func (e *TerminalExecutor) Kind() schema.NodeKind { return schema.NodeKindTerminal }

func (e *TerminalExecutor) Execute(ctx context.Context, node *schema.Node, ec *engine.ExecContext) schema.NodeResult {
	result := begin(node)

	var cfg schema.TerminalConfig
	if len(node.Config) > 0 {
		if err := decodeConfig(node, &cfg); err != nil {
			return fail(&result, err)
		}
	}

	// Without an explicit output expression the run ends with the previous
	// node's output.
	if cfg.Output == "" {
		if last := ec.LastResult(); last != nil {
			result.Output = last.Output
		}
		return done(&result)
	}

	output, err := e.interp.ResolveValue(cfg.Output, ec.Scope())
	if err != nil {
		return fail(&result, err)
	}
	result.Output = output
	return done(&result)
}
