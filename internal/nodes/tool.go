package nodes

import (
	"context"
	"log/slog"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/internal/tools"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// ToolExecutor resolves the node's argument mapping and invokes the named
// tool. Tool failures are node-local: they land on the result and the graph
// decides whether the run survives.
type ToolExecutor struct {
	registry *tools.Registry
	interp   *expressions.Interpolator
	jq       *expressions.GoJQEngine
	logger   *slog.Logger
}

func (e *ToolExecutor) Kind() schema.NodeKind { return schema.NodeKindTool }

func (e *ToolExecutor) Execute(ctx context.Context, node *schema.Node, ec *engine.ExecContext) schema.NodeResult {
	result := begin(node)

	var cfg schema.ToolConfig
	if err := decodeConfig(node, &cfg); err != nil {
		return fail(&result, err)
	}
	if cfg.Tool == "" {
		return fail(&result, schema.NewErrorf(schema.ErrCodeValidation,
			"tool node %q names no tool", node.ID).WithNode(node.ID))
	}

	args, err := e.resolveArgs(ctx, &cfg, ec)
	if err != nil {
		return fail(&result, err)
	}
	result.Input = args

	tool, err := e.registry.Get(cfg.Tool)
	if err != nil {
		return fail(&result, err)
	}

	e.logger.DebugContext(ctx, "invoking tool", "tool", cfg.Tool)
	output, err := tool.Call(ctx, args)
	if err != nil {
		return fail(&result, err)
	}

	outputVar := cfg.OutputVar
	if outputVar == "" {
		outputVar = DefaultToolVar
	}
	ec.SetVariable(outputVar, output)

	result.Output = output
	return done(&result)
}

// resolveArgs builds the tool arguments. args_map (a jq expression over the
// run scope) wins over the static args block, whose string values are
// interpolated.
func (e *ToolExecutor) resolveArgs(ctx context.Context, cfg *schema.ToolConfig, ec *engine.ExecContext) (map[string]any, error) {
	scope := ec.Scope()

	if cfg.ArgsMap != "" {
		mapped, err := e.jq.Evaluate(ctx, cfg.ArgsMap, scope)
		if err != nil {
			return nil, err
		}
		args, ok := mapped.(map[string]any)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"args_map must produce an object, got %T", mapped)
		}
		return args, nil
	}

	if cfg.Args == nil {
		return map[string]any{}, nil
	}
	resolved, err := e.interp.ResolveValue(cfg.Args, scope)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}
