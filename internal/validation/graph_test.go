package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

func linearAgent() *schema.AgentDefinition {
	return &schema.AgentDefinition{
		ID:        "linear",
		EntryNode: "fetch",
		Nodes: []schema.Node{
			{ID: "fetch", Kind: schema.NodeKindTool, Config: json.RawMessage(`{"tool":"echo"}`)},
			{ID: "done", Kind: schema.NodeKindTerminal},
		},
		Edges: []schema.Edge{
			{From: "fetch", To: "done"},
		},
	}
}

// --- Graph stage ---

func TestGraph_ValidLinear(t *testing.T) {
	result := validateGraph(linearAgent())
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestGraph_CycleIsLegal(t *testing.T) {
	def := &schema.AgentDefinition{
		ID:        "loop",
		EntryNode: "check",
		Nodes: []schema.Node{
			{ID: "check", Kind: schema.NodeKindCondition, Config: json.RawMessage(`{"expression":"true"}`)},
			{ID: "work", Kind: schema.NodeKindScript, Config: json.RawMessage(`{"source":"return 1"}`)},
			{ID: "done", Kind: schema.NodeKindTerminal},
		},
		Edges: []schema.Edge{
			{From: "check", To: "work", Branch: "true"},
			{From: "check", To: "done", Branch: "default"},
			{From: "work", To: "check"},
		},
	}
	result := validateGraph(def)
	assert.True(t, result.Valid())
	assert.Empty(t, result.Warnings)
}

func TestGraph_MissingEntryNode(t *testing.T) {
	def := linearAgent()
	def.EntryNode = "ghost"
	result := validateGraph(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "ghost")
}

func TestGraph_DuplicateNodeID(t *testing.T) {
	def := linearAgent()
	def.Nodes = append(def.Nodes, schema.Node{ID: "fetch", Kind: schema.NodeKindTerminal})
	result := validateGraph(def)
	assert.False(t, result.Valid())
}

func TestGraph_UnknownEdgeEndpoint(t *testing.T) {
	def := linearAgent()
	def.Edges = append(def.Edges, schema.Edge{From: "fetch", To: "nowhere", Branch: "error"})
	result := validateGraph(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "nowhere")
}

func TestGraph_AmbiguousSuccessor(t *testing.T) {
	def := linearAgent()
	def.Edges = append(def.Edges, schema.Edge{From: "fetch", To: "done"})
	result := validateGraph(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "multiple edges")
}

func TestGraph_LinearNodeWithoutSuccessor(t *testing.T) {
	def := linearAgent()
	def.Edges = nil
	result := validateGraph(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "no successor edge")
}

func TestGraph_ConditionWithoutBranches(t *testing.T) {
	def := &schema.AgentDefinition{
		ID:        "branchy",
		EntryNode: "check",
		Nodes: []schema.Node{
			{ID: "check", Kind: schema.NodeKindCondition, Config: json.RawMessage(`{"expression":"input != \"\""}`)},
			{ID: "recover", Kind: schema.NodeKindTerminal},
		},
		Edges: []schema.Edge{
			{From: "check", To: "recover", Branch: "error"},
		},
	}
	result := validateGraph(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "no branch edges")
}

func TestGraph_ConditionWithoutDefaultWarns(t *testing.T) {
	def := &schema.AgentDefinition{
		ID:        "branchy",
		EntryNode: "check",
		Nodes: []schema.Node{
			{ID: "check", Kind: schema.NodeKindCondition, Config: json.RawMessage(`{"expression":"true"}`)},
			{ID: "yes", Kind: schema.NodeKindTerminal},
		},
		Edges: []schema.Edge{
			{From: "check", To: "yes", Branch: "true"},
		},
	}
	result := validateGraph(def)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "default")
}

func TestGraph_UnreachableNodeWarns(t *testing.T) {
	def := linearAgent()
	def.Nodes = append(def.Nodes, schema.Node{ID: "island", Kind: schema.NodeKindTerminal})
	result := validateGraph(def)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "unreachable")
}

func TestGraph_TerminalWithOutgoingEdgeWarns(t *testing.T) {
	def := linearAgent()
	def.Edges = append(def.Edges, schema.Edge{From: "done", To: "fetch"})
	result := validateGraph(def)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "never be followed")
}

// --- Config stage ---

func TestConfigs_Valid(t *testing.T) {
	def := &schema.AgentDefinition{
		ID:        "cfg",
		EntryNode: "ask",
		Nodes: []schema.Node{
			{ID: "ask", Kind: schema.NodeKindPrompt, Config: json.RawMessage(`{"model":"gpt-4o-mini","template":"{{input}}"}`)},
			{ID: "run", Kind: schema.NodeKindScript, Config: json.RawMessage(`{"source":"return 1"}`)},
			{ID: "done", Kind: schema.NodeKindTerminal},
		},
	}
	result := validateConfigs(def)
	assert.True(t, result.Valid())
}

func TestConfigs_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		node schema.Node
		want string
	}{
		{"prompt without template", schema.Node{ID: "p", Kind: schema.NodeKindPrompt, Config: json.RawMessage(`{"model":"m"}`)}, "template"},
		{"tool without name", schema.Node{ID: "t", Kind: schema.NodeKindTool, Config: json.RawMessage(`{}`)}, "tool name"},
		{"script without source", schema.Node{ID: "s", Kind: schema.NodeKindScript, Config: json.RawMessage(`{}`)}, "source"},
		{"condition without expression", schema.Node{ID: "c", Kind: schema.NodeKindCondition, Config: json.RawMessage(`{}`)}, "expression"},
		{"prompt without config", schema.Node{ID: "p2", Kind: schema.NodeKindPrompt}, "config block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &schema.AgentDefinition{ID: "x", EntryNode: tt.node.ID, Nodes: []schema.Node{tt.node}}
			result := validateConfigs(def)
			require.False(t, result.Valid())
			assert.Contains(t, result.Errors[0].Message, tt.want)
		})
	}
}

func TestConfigs_TerminalConfigOptional(t *testing.T) {
	def := &schema.AgentDefinition{
		ID:        "t",
		EntryNode: "done",
		Nodes:     []schema.Node{{ID: "done", Kind: schema.NodeKindTerminal}},
	}
	result := validateConfigs(def)
	assert.True(t, result.Valid())
}
