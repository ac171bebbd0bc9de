// Package nodes implements one executor per node kind. Executors never
// return Go errors to the runner: every failure lands on the NodeResult so
// the walker can route it through the graph's error edges.
package nodes

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/internal/inference"
	"github.com/nodeloom/nodeloom/internal/script"
	"github.com/nodeloom/nodeloom/internal/tools"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// Default output variable names per node kind.
const (
	DefaultPromptVar = "lastOutput"
	DefaultToolVar   = "toolResult"
	DefaultScriptVar = "scriptResult"
)

// Deps bundles the collaborators the executors need.
type Deps struct {
	Provider inference.Provider
	Tools    *tools.Registry
	Sandbox  *script.Sandbox
	Interp   *expressions.Interpolator
	Expr     *expressions.ExprEngine
	CEL      *expressions.CELEngine
	JQ       *expressions.GoJQEngine
	Logger   *slog.Logger
}

// NewExecutors builds the full executor set, one per node kind.
func NewExecutors(deps Deps) []engine.NodeExecutor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return []engine.NodeExecutor{
		&PromptExecutor{provider: deps.Provider, interp: deps.Interp, logger: deps.Logger},
		&ToolExecutor{registry: deps.Tools, interp: deps.Interp, jq: deps.JQ, logger: deps.Logger},
		&ScriptExecutor{sandbox: deps.Sandbox, logger: deps.Logger},
		&ConditionExecutor{expr: deps.Expr, cel: deps.CEL},
		&TerminalExecutor{interp: deps.Interp},
	}
}

// begin starts a NodeResult for node with timing fields set.
func begin(node *schema.Node) schema.NodeResult {
	return schema.NodeResult{
		NodeID:    node.ID,
		NodeLabel: node.Label,
		Kind:      node.Kind,
		StartedAt: time.Now().UTC(),
	}
}

// done stamps the duration.
func done(result *schema.NodeResult) schema.NodeResult {
	result.DurationMs = time.Since(result.StartedAt).Milliseconds()
	return *result
}

// fail records err on the result and stamps the duration.
func fail(result *schema.NodeResult, err error) schema.NodeResult {
	result.Error = err.Error()
	return done(result)
}

// decodeConfig unmarshals the node's config block into dst.
func decodeConfig(node *schema.Node, dst any) error {
	if len(node.Config) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"node %q (%s) has no config", node.ID, node.Kind).WithNode(node.ID)
	}
	if err := json.Unmarshal(node.Config, dst); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"node %q (%s) config is malformed", node.ID, node.Kind).
			WithNode(node.ID).WithCause(err)
	}
	return nil
}
