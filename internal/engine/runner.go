package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nodeloom/nodeloom/internal/logging"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// DefaultMaxSteps bounds runs whose graphs loop; generous but finite.
const DefaultMaxSteps = 1000

// NodeExecutor runs exactly one node kind. Implementations never let errors
// escape: failures are recorded on the returned NodeResult.
type NodeExecutor interface {
	Kind() schema.NodeKind
	Execute(ctx context.Context, node *schema.Node, ec *ExecContext) schema.NodeResult
}

// LogPublisher fans a log entry out to live subscribers. Implemented by the
// streaming hub.
type LogPublisher interface {
	Publish(agentID, runID string, entry schema.LogEntry)
}

// RunRecorder persists run lifecycle and log entries. All calls are
// best-effort from the runner's point of view: persistence failures are
// logged, never run-fatal.
type RunRecorder interface {
	RunStarted(ctx context.Context, agentID, runID, input string, startedAt time.Time) error
	AppendRunLog(ctx context.Context, agentID, runID string, entry schema.LogEntry) error
	RunFinished(ctx context.Context, result *schema.RunResult) error
}

// RunnerOptions configures a Runner. Publisher and Recorder are optional.
type RunnerOptions struct {
	MaxSteps  int
	Publisher LogPublisher
	Recorder  RunRecorder
	Logger    *slog.Logger
}

// Runner executes agent workflows. One Runner serves all agents; each call
// to ExecuteWorkflow owns one run end to end on the calling goroutine.
type Runner struct {
	registry  *RunRegistry
	walker    *Walker
	executors map[schema.NodeKind]NodeExecutor
	maxSteps  int
	publisher LogPublisher
	recorder  RunRecorder
	logger    *slog.Logger
}

// NewRunner creates a Runner dispatching to the given executors.
func NewRunner(registry *RunRegistry, executors []NodeExecutor, opts RunnerOptions) *Runner {
	byKind := make(map[schema.NodeKind]NodeExecutor, len(executors))
	for _, e := range executors {
		byKind[e.Kind()] = e
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:  registry,
		walker:    NewWalker(),
		executors: byKind,
		maxSteps:  maxSteps,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
		logger:    logger,
	}
}

// ExecuteWorkflow runs the agent's graph from its entry node until a
// terminal node, a fatal error, or cancellation. onNode receives one log
// entry per executed node, in execution order; it must not block and may be
// nil.
//
// The returned error covers only pre-execution problems: nil or invalid
// arguments, or the agent already having a run in flight. In-graph failures
// end the run as Failed with a nil Output; diagnostics live in the emitted
// node results.
func (r *Runner) ExecuteWorkflow(ctx context.Context, agent *schema.AgentDefinition, input string, onNode func(schema.LogEntry)) (*schema.RunResult, error) {
	if agent == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "agent is nil")
	}
	if agent.ID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "agent id is empty")
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.registry.Acquire(agent.ID, runID, cancel); err != nil {
		return nil, err
	}
	defer r.registry.Release(agent.ID, runID)

	runCtx = logging.WithIDs(runCtx, agent.ID, runID, "")
	r.logger.InfoContext(runCtx, "run started", "entry_node", agent.EntryNode)

	if r.recorder != nil {
		if err := r.recorder.RunStarted(runCtx, agent.ID, runID, input, time.Now().UTC()); err != nil {
			r.logger.WarnContext(runCtx, "record run start", "error", err)
		}
	}

	result := r.execute(runCtx, agent, runID, input, onNode)

	if r.recorder != nil {
		// A cancelled run must still persist its final state, so the
		// recorder gets a context that outlives the run's own.
		recCtx := context.WithoutCancel(runCtx)
		if err := r.recorder.RunFinished(recCtx, result); err != nil {
			r.logger.WarnContext(recCtx, "record run end", "error", err)
		}
	}
	r.logger.InfoContext(runCtx, "run finished",
		"status", string(result.Status),
		"steps", result.Steps)

	return result, nil
}

// CancelWorkflow signals the agent's in-flight run, if any. Reports whether
// a run was found.
func (r *Runner) CancelWorkflow(agentID string) bool {
	return r.registry.Cancel(agentID)
}

// IsWorkflowRunning reports whether the agent currently has a run in flight.
func (r *Runner) IsWorkflowRunning(agentID string) bool {
	return r.registry.IsRunning(agentID)
}

// ActiveRuns snapshots all in-flight runs.
func (r *Runner) ActiveRuns() []RunInfo {
	return r.registry.Active()
}

// execute drives the walk loop. It always returns a terminal-status result
// and never panics out.
func (r *Runner) execute(ctx context.Context, agent *schema.AgentDefinition, runID, input string, onNode func(schema.LogEntry)) *schema.RunResult {
	result := &schema.RunResult{
		RunID:     runID,
		AgentID:   agent.ID,
		Status:    schema.RunStatusStarting,
		StartedAt: time.Now().UTC(),
	}
	ec := NewExecContext(agent.ID, runID, input)

	r.transition(ctx, result, schema.RunStatusRunning)

	maxSteps := agent.MaxSteps
	if maxSteps <= 0 {
		maxSteps = r.maxSteps
	}

	current := agent.EntryNode
	for {
		// Cancellation is observed between nodes; an in-flight node sees it
		// through its context.
		if ctx.Err() != nil {
			r.finish(result, ec, schema.RunStatusCancelled, nil)
			return result
		}

		node := agent.FindNode(current)
		if node == nil {
			r.failRun(ctx, result, ec, onNode, schema.NodeResult{
				NodeID:    current,
				StartedAt: time.Now().UTC(),
				Error: schema.NewErrorf(schema.ErrCodeValidation,
					"graph references unknown node %q", current).Error(),
			})
			return result
		}

		if result.Steps >= maxSteps {
			r.failRun(ctx, result, ec, onNode, schema.NodeResult{
				NodeID:    node.ID,
				NodeLabel: node.Label,
				Kind:      node.Kind,
				StartedAt: time.Now().UTC(),
				Error: schema.NewErrorf(schema.ErrCodeStepLimit,
					"run exceeded %d steps without reaching a terminal node", maxSteps).Error(),
			})
			return result
		}
		result.Steps++

		nodeResult := r.executeNode(ctx, node, ec)

		// A node that errored because the run was cancelled is not a
		// failure; the run ends without a synthetic failure result.
		if ctx.Err() != nil && nodeResult.Failed() {
			r.finish(result, ec, schema.RunStatusCancelled, nil)
			return result
		}

		decision := r.walker.Next(agent, node, &nodeResult)

		// Walker halts caused by this node (unmatched branch, missing
		// successor) belong on the node's own result, so the caller sees
		// exactly one entry per visited node.
		if decision.Err != nil && !nodeResult.Failed() {
			nodeResult.Error = decision.Err.Error()
		}

		ec.AppendResult(nodeResult)
		r.emit(ctx, agent.ID, runID, nodeResult.LogEntry(), onNode)

		switch {
		case decision.Err != nil:
			r.finish(result, ec, schema.RunStatusFailed, nil)
			return result
		case decision.Halt:
			r.finish(result, ec, schema.RunStatusCompleted, nodeResult.Output)
			return result
		default:
			current = decision.Next
		}
	}
}

// executeNode dispatches to the node's executor, converting panics and
// missing executors into failed results.
func (r *Runner) executeNode(ctx context.Context, node *schema.Node, ec *ExecContext) (result schema.NodeResult) {
	nodeCtx := logging.WithNodeID(ctx, node.ID)

	executor, ok := r.executors[node.Kind]
	if !ok {
		return schema.NodeResult{
			NodeID:    node.ID,
			NodeLabel: node.Label,
			Kind:      node.Kind,
			StartedAt: time.Now().UTC(),
			Error: schema.NewErrorf(schema.ErrCodeValidation,
				"no executor for node kind %q", node.Kind).Error(),
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(nodeCtx, "node executor panicked", "panic", p)
			result = schema.NodeResult{
				NodeID:    node.ID,
				NodeLabel: node.Label,
				Kind:      node.Kind,
				StartedAt: time.Now().UTC(),
				Error: schema.NewErrorf(schema.ErrCodeExecution,
					"node executor panicked: %v", p).Error(),
			}
		}
	}()

	return executor.Execute(nodeCtx, node, ec)
}

// failRun records a synthetic failure result and ends the run as failed.
// Used for graph-authoring errors where no executor ran.
func (r *Runner) failRun(ctx context.Context, result *schema.RunResult, ec *ExecContext, onNode func(schema.LogEntry), nodeResult schema.NodeResult) {
	ec.AppendResult(nodeResult)
	r.emit(ctx, result.AgentID, result.RunID, nodeResult.LogEntry(), onNode)
	r.finish(result, ec, schema.RunStatusFailed, nil)
}

// emit delivers one log entry to the callback, the live stream, and the run
// log. Callback panics are contained; they must never take down the run.
func (r *Runner) emit(ctx context.Context, agentID, runID string, entry schema.LogEntry, onNode func(schema.LogEntry)) {
	if onNode != nil {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.ErrorContext(ctx, "node callback panicked", "panic", p)
				}
			}()
			onNode(entry)
		}()
	}
	if r.publisher != nil {
		r.publisher.Publish(agentID, runID, entry)
	}
	if r.recorder != nil {
		// The entry for the node a cancellation interrupted still belongs
		// in the persisted log.
		recCtx := context.WithoutCancel(ctx)
		if err := r.recorder.AppendRunLog(recCtx, agentID, runID, entry); err != nil {
			r.logger.WarnContext(recCtx, "append run log", "error", err)
		}
	}
}

func (r *Runner) transition(ctx context.Context, result *schema.RunResult, to schema.RunStatus) {
	if err := ValidateTransition(result.Status, to); err != nil {
		// Transitions are driven by the runner itself; a bad one is a bug.
		r.logger.ErrorContext(ctx, "run transition rejected", "error", err)
		return
	}
	result.Status = to
}

func (r *Runner) finish(result *schema.RunResult, ec *ExecContext, status schema.RunStatus, output any) {
	if err := ValidateTransition(result.Status, status); err == nil {
		result.Status = status
	}
	result.Output = output
	result.CompletedAt = time.Now().UTC()
	result.History = ec.History()
}
