package engine

import (
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// Decision is the walker's verdict after one node execution: either the id
// of the next node, or a halt. A halt with Err set ends the run as failed;
// a halt without Err is successful completion.
type Decision struct {
	Next string
	Halt bool
	Err  error
}

// Walker selects the next node from the graph's edges. It applies no cycle
// detection: loops are legal graph shapes and the runner's step cap is the
// termination backstop.
type Walker struct{}

// NewWalker creates a Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// Next decides where the run goes after node produced result.
//
// A failed node follows its "error" edge when one exists, otherwise the
// failure is run-fatal. Terminal nodes halt with success. Condition nodes
// follow the edge matching the recorded branch value, falling back to an
// explicit "default" edge; an unmatched branch halts with an error rather
// than guessing. Every other node follows its single unlabeled successor.
func (w *Walker) Next(agent *schema.AgentDefinition, node *schema.Node, result *schema.NodeResult) Decision {
	if result.Failed() {
		if to, ok := findEdge(agent, node.ID, schema.BranchError); ok {
			return Decision{Next: to}
		}
		return Decision{Halt: true, Err: schema.NewErrorf(schema.ErrCodeNodeFailed,
			"node %q failed with no error edge: %s", node.ID, result.Error).WithNode(node.ID)}
	}

	if node.Kind == schema.NodeKindTerminal {
		return Decision{Halt: true}
	}

	if node.Kind == schema.NodeKindCondition {
		if to, ok := findEdge(agent, node.ID, result.Branch); ok {
			return Decision{Next: to}
		}
		if to, ok := findEdge(agent, node.ID, schema.BranchDefault); ok {
			return Decision{Next: to}
		}
		return Decision{Halt: true, Err: schema.NewErrorf(schema.ErrCodeBranchUnmatched,
			"condition %q selected branch %q but no edge matches it", node.ID, result.Branch).
			WithNode(node.ID).
			WithDetails(map[string]any{"branch": result.Branch})}
	}

	if to, ok := findEdge(agent, node.ID, ""); ok {
		return Decision{Next: to}
	}
	return Decision{Halt: true, Err: schema.NewErrorf(schema.ErrCodeValidation,
		"node %q has no successor edge", node.ID).WithNode(node.ID)}
}

// findEdge returns the target of the edge leaving from with the given
// branch label.
func findEdge(agent *schema.AgentDefinition, from, branch string) (string, bool) {
	for i := range agent.Edges {
		e := &agent.Edges[i]
		if e.From == from && e.Branch == branch {
			return e.To, true
		}
	}
	return "", false
}
