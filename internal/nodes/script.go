package nodes

import (
	"context"
	"log/slog"
	"time"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/script"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// ScriptExecutor runs the node's embedded JavaScript in the sandbox.
// Captured console output travels on the result and becomes the js-console
// log payload.
type ScriptExecutor struct {
	sandbox *script.Sandbox
	logger  *slog.Logger
}

func (e *ScriptExecutor) Kind() schema.NodeKind { return schema.NodeKindScript }

func (e *ScriptExecutor) Execute(ctx context.Context, node *schema.Node, ec *engine.ExecContext) schema.NodeResult {
	result := begin(node)

	var cfg schema.ScriptConfig
	if err := decodeConfig(node, &cfg); err != nil {
		return fail(&result, err)
	}
	if cfg.Source == "" {
		return fail(&result, schema.NewErrorf(schema.ErrCodeValidation,
			"script node %q has no source", node.ID).WithNode(node.ID))
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	run, err := e.sandbox.Run(ctx, cfg.Source, ec.Scope(), timeout)
	if run != nil {
		result.Console = run.Console
	}
	if err != nil {
		return fail(&result, err)
	}

	outputVar := cfg.OutputVar
	if outputVar == "" {
		outputVar = DefaultScriptVar
	}
	ec.SetVariable(outputVar, run.Value)

	result.Output = run.Value
	return done(&result)
}
