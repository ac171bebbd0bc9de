package engine

import (
	"testing"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

func TestExecContext_VariableAbsentSentinel(t *testing.T) {
	ec := NewExecContext("agent-1", "run-1", "go")

	if ec.Variable("missing") != Absent {
		t.Error("unset variable should return the Absent sentinel")
	}

	ec.SetVariable("flag", false)
	if ec.Variable("flag") != false {
		t.Error("a falsy value must be distinguishable from absent")
	}

	ec.SetVariable("flag", true)
	if ec.Variable("flag") != true {
		t.Error("SetVariable should overwrite")
	}
}

func TestExecContext_HistoryOrder(t *testing.T) {
	ec := NewExecContext("agent-1", "run-1", "go")

	for _, id := range []string{"a", "b", "c"} {
		ec.AppendResult(schema.NodeResult{NodeID: id})
	}

	history := ec.History()
	if len(history) != 3 {
		t.Fatalf("expected 3 results, got %d", len(history))
	}
	for i, id := range []string{"a", "b", "c"} {
		if history[i].NodeID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, history[i].NodeID)
		}
	}

	if last := ec.LastResult(); last == nil || last.NodeID != "c" {
		t.Errorf("LastResult: %v", last)
	}
}

func TestExecContext_Scope(t *testing.T) {
	ec := NewExecContext("agent-1", "run-1", "the input")
	ec.SetVariable("toolResult", "ok")
	ec.AppendResult(schema.NodeResult{NodeID: "n1", Output: "out1"})
	ec.AppendResult(schema.NodeResult{NodeID: "n2", Error: "boom", Branch: "left"})

	scope := ec.Scope()
	if scope["input"] != "the input" {
		t.Errorf("input: %v", scope["input"])
	}

	vars := scope["vars"].(map[string]any)
	if vars["toolResult"] != "ok" {
		t.Errorf("vars: %v", vars)
	}

	nodes := scope["nodes"].(map[string]any)
	n1 := nodes["n1"].(map[string]any)
	if n1["output"] != "out1" {
		t.Errorf("n1: %v", n1)
	}
	n2 := nodes["n2"].(map[string]any)
	if n2["error"] != "boom" || n2["branch"] != "left" {
		t.Errorf("n2: %v", n2)
	}

	run := scope["run"].(map[string]any)
	if run["id"] != "run-1" || run["agent"] != "agent-1" || run["steps"] != 2 {
		t.Errorf("run: %v", run)
	}
}

func TestExecContext_ScopeVarsAreCopies(t *testing.T) {
	ec := NewExecContext("agent-1", "run-1", "")
	ec.SetVariable("x", 1)

	scope := ec.Scope()
	scope["vars"].(map[string]any)["x"] = 99

	if ec.Variable("x") != 1 {
		t.Error("mutating the scope must not leak into the context")
	}
}
