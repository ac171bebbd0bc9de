package engine

import (
	"errors"
	"testing"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

func walkerAgent() *schema.AgentDefinition {
	return &schema.AgentDefinition{
		ID:        "a1",
		EntryNode: "start",
		Nodes: []schema.Node{
			{ID: "start", Kind: schema.NodeKindPrompt},
			{ID: "check", Kind: schema.NodeKindCondition},
			{ID: "yes", Kind: schema.NodeKindTool},
			{ID: "no", Kind: schema.NodeKindScript},
			{ID: "recover", Kind: schema.NodeKindScript},
			{ID: "end", Kind: schema.NodeKindTerminal},
		},
		Edges: []schema.Edge{
			{From: "start", To: "check"},
			{From: "start", To: "recover", Branch: schema.BranchError},
			{From: "check", To: "yes", Branch: "true"},
			{From: "check", To: "no", Branch: "false"},
			{From: "yes", To: "end"},
			{From: "no", To: "end"},
			{From: "recover", To: "end"},
		},
	}
}

func TestWalker_LinearSuccessor(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()

	d := w.Next(agent, agent.FindNode("start"), &schema.NodeResult{NodeID: "start"})
	if d.Halt || d.Next != "check" {
		t.Errorf("expected next=check, got %+v", d)
	}
}

func TestWalker_ConditionBranches(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()
	check := agent.FindNode("check")

	d := w.Next(agent, check, &schema.NodeResult{NodeID: "check", Branch: "true"})
	if d.Next != "yes" {
		t.Errorf("branch true: %+v", d)
	}

	d = w.Next(agent, check, &schema.NodeResult{NodeID: "check", Branch: "false"})
	if d.Next != "no" {
		t.Errorf("branch false: %+v", d)
	}
}

func TestWalker_UnmatchedBranchHaltsWithError(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()

	d := w.Next(agent, agent.FindNode("check"), &schema.NodeResult{NodeID: "check", Branch: "maybe"})
	if !d.Halt || d.Err == nil {
		t.Fatalf("expected halt with error, got %+v", d)
	}
	var engErr *schema.EngineError
	if !errors.As(d.Err, &engErr) || engErr.Code != schema.ErrCodeBranchUnmatched {
		t.Errorf("expected BRANCH_UNMATCHED, got %v", d.Err)
	}
}

func TestWalker_DefaultBranchEdge(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()
	agent.Edges = append(agent.Edges, schema.Edge{From: "check", To: "no", Branch: schema.BranchDefault})

	d := w.Next(agent, agent.FindNode("check"), &schema.NodeResult{NodeID: "check", Branch: "maybe"})
	if d.Halt || d.Next != "no" {
		t.Errorf("explicit default edge should catch unmatched branches: %+v", d)
	}
}

func TestWalker_TerminalHaltsOK(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()

	d := w.Next(agent, agent.FindNode("end"), &schema.NodeResult{NodeID: "end", Output: "done"})
	if !d.Halt || d.Err != nil {
		t.Errorf("terminal should halt cleanly: %+v", d)
	}
}

func TestWalker_FailedNodeFollowsErrorEdge(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()

	d := w.Next(agent, agent.FindNode("start"), &schema.NodeResult{NodeID: "start", Error: "model down"})
	if d.Halt || d.Next != "recover" {
		t.Errorf("failed node should follow its error edge: %+v", d)
	}
}

func TestWalker_FailedNodeWithoutErrorEdgeIsFatal(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()

	d := w.Next(agent, agent.FindNode("yes"), &schema.NodeResult{NodeID: "yes", Error: "tool blew up"})
	if !d.Halt || d.Err == nil {
		t.Fatalf("expected fatal halt, got %+v", d)
	}
	var engErr *schema.EngineError
	if !errors.As(d.Err, &engErr) || engErr.Code != schema.ErrCodeNodeFailed {
		t.Errorf("expected NODE_FAILED, got %v", d.Err)
	}
}

func TestWalker_MissingSuccessorIsFatal(t *testing.T) {
	w := NewWalker()
	agent := walkerAgent()
	agent.Nodes = append(agent.Nodes, schema.Node{ID: "dangling", Kind: schema.NodeKindScript})

	d := w.Next(agent, agent.FindNode("dangling"), &schema.NodeResult{NodeID: "dangling"})
	if !d.Halt || d.Err == nil {
		t.Errorf("node without successor should halt with error: %+v", d)
	}
}
