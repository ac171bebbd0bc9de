// Package engine runs agent node graphs: it walks the graph, dispatches
// each node to its executor, records results, and enforces the one-run-per
// agent rule.
package engine

import (
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// Absent is the sentinel returned by ExecContext.Variable for unset names.
// Conditions use it to tell "never set" apart from a falsy value.
var Absent = absentValue{}

type absentValue struct{}

func (absentValue) String() string { return "<absent>" }

// ExecContext is the mutable state of one run. It is owned by a single
// runner goroutine for the run's lifetime and is never shared, so it needs
// no locking.
type ExecContext struct {
	AgentID string
	RunID   string
	Input   string

	vars    map[string]any
	history []schema.NodeResult
}

// NewExecContext creates the context for a fresh run.
func NewExecContext(agentID, runID, input string) *ExecContext {
	return &ExecContext{
		AgentID: agentID,
		RunID:   runID,
		Input:   input,
		vars:    make(map[string]any),
	}
}

// Variable returns the value bound to name, or Absent.
func (c *ExecContext) Variable(name string) any {
	val, ok := c.vars[name]
	if !ok {
		return Absent
	}
	return val
}

// SetVariable binds name to value, overwriting any previous binding.
func (c *ExecContext) SetVariable(name string, value any) {
	c.vars[name] = value
}

// AppendResult records a completed node execution.
func (c *ExecContext) AppendResult(result schema.NodeResult) {
	c.history = append(c.history, result)
}

// History returns the ordered node results so far. The returned slice must
// not be mutated.
func (c *ExecContext) History() []schema.NodeResult {
	return c.history
}

// LastResult returns the most recent node result, or nil before any node
// has run.
func (c *ExecContext) LastResult() *schema.NodeResult {
	if len(c.history) == 0 {
		return nil
	}
	return &c.history[len(c.history)-1]
}

// Scope builds the expression and interpolation scope for the current state:
// {input, vars, nodes, run}. nodes maps node id to its latest result's
// output and error; repeated visits (loops) overwrite.
func (c *ExecContext) Scope() map[string]any {
	vars := make(map[string]any, len(c.vars))
	for k, v := range c.vars {
		vars[k] = v
	}

	nodes := make(map[string]any, len(c.history))
	for i := range c.history {
		r := &c.history[i]
		entry := map[string]any{"output": r.Output}
		if r.Error != "" {
			entry["error"] = r.Error
		}
		if r.Branch != "" {
			entry["branch"] = r.Branch
		}
		nodes[r.NodeID] = entry
	}

	return map[string]any{
		"input": c.Input,
		"vars":  vars,
		"nodes": nodes,
		"run": map[string]any{
			"id":    c.RunID,
			"agent": c.AgentID,
			"steps": len(c.history),
		},
	}
}
