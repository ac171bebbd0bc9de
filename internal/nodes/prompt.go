package nodes

import (
	"context"
	"log/slog"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/internal/inference"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// PromptExecutor resolves a prompt template against the run scope and sends
// it to the inference provider. The model call is one of the run's two
// suspension points and receives the run context for cancellation.
type PromptExecutor struct {
	provider inference.Provider
	interp   *expressions.Interpolator
	logger   *slog.Logger
}

func (e *PromptExecutor) Kind() schema.NodeKind { return schema.NodeKindPrompt }

func (e *PromptExecutor) Execute(ctx context.Context, node *schema.Node, ec *engine.ExecContext) schema.NodeResult {
	result := begin(node)

	var cfg schema.PromptConfig
	if err := decodeConfig(node, &cfg); err != nil {
		return fail(&result, err)
	}
	if cfg.Template == "" {
		return fail(&result, schema.NewErrorf(schema.ErrCodeValidation,
			"prompt node %q has no template", node.ID).WithNode(node.ID))
	}

	scope := ec.Scope()
	prompt, err := e.interp.Resolve(cfg.Template, scope)
	if err != nil {
		return fail(&result, err)
	}
	system := ""
	if cfg.System != "" {
		if system, err = e.interp.Resolve(cfg.System, scope); err != nil {
			return fail(&result, err)
		}
	}
	result.Input = prompt

	e.logger.DebugContext(ctx, "calling model", "model", cfg.Model)
	text, err := e.provider.Complete(ctx, inference.Request{
		Model:  cfg.Model,
		System: system,
		Prompt: prompt,
		Params: cfg.Params,
	})
	if err != nil {
		return fail(&result, err)
	}

	outputVar := cfg.OutputVar
	if outputVar == "" {
		outputVar = DefaultPromptVar
	}
	ec.SetVariable(outputVar, text)

	result.Output = text
	return done(&result)
}
