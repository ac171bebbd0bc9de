package schema

import "encoding/json"

// AgentDefinition is the JSON-serializable node graph an agent executes.
// Definitions are authored externally and are read-only to the engine.
type AgentDefinition struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	EntryNode string          `json:"entry_node"`
	Nodes     []Node          `json:"nodes"`
	Edges     []Edge          `json:"edges"`
	MaxSteps  int             `json:"max_steps,omitempty"` // 0 = engine default
	Metadata  map[string]any  `json:"metadata,omitempty"`
}

// FindNode returns the node with the given ID, or nil.
func (d *AgentDefinition) FindNode(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// Node is a single step in an agent graph.
type Node struct {
	ID     string          `json:"id"`
	Label  string          `json:"label,omitempty"`
	Kind   NodeKind        `json:"kind"`
	Config json.RawMessage `json:"config,omitempty"` // kind-specific config
}

// NodeKind enumerates the node variants.
type NodeKind string

const (
	NodeKindPrompt    NodeKind = "prompt"
	NodeKindTool      NodeKind = "tool"
	NodeKindScript    NodeKind = "script"
	NodeKindCondition NodeKind = "condition"
	NodeKindTerminal  NodeKind = "terminal"
)

// NodeKinds lists every valid node kind. Executor wiring and validation
// iterate this to guarantee exhaustive coverage.
var NodeKinds = []NodeKind{
	NodeKindPrompt,
	NodeKindTool,
	NodeKindScript,
	NodeKindCondition,
	NodeKindTerminal,
}

// Edge connects two nodes. Branch selects the edge for condition outcomes:
// "" is the single successor of a linear node, BranchDefault matches any
// otherwise-unmatched condition value, and BranchError routes a node-local
// failure to a recovery node.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Branch string `json:"branch,omitempty"`
}

// Reserved branch values.
const (
	BranchDefault = "default"
	BranchError   = "error"
)

// PromptConfig is the config block for prompt nodes.
type PromptConfig struct {
	Model     string         `json:"model"`
	Template  string         `json:"template"`            // interpolated against the run scope
	System    string         `json:"system,omitempty"`    // system prompt, also interpolated
	Params    map[string]any `json:"params,omitempty"`    // model parameters (temperature, max_tokens, ...)
	OutputVar string         `json:"output_var,omitempty"` // context variable for the response (default "lastOutput")
}

// ToolConfig is the config block for tool nodes.
type ToolConfig struct {
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args,omitempty"`     // string values are interpolated
	ArgsMap   string         `json:"args_map,omitempty"` // jq expression over the run scope, overrides Args
	OutputVar string         `json:"output_var,omitempty"` // default "toolResult"
}

// ScriptConfig is the config block for script nodes.
type ScriptConfig struct {
	Source    string `json:"source"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"` // wall-clock bound (default 5000)
	OutputVar string `json:"output_var,omitempty"` // default "scriptResult"
}

// ConditionConfig is the config block for condition nodes.
type ConditionConfig struct {
	Expression string `json:"expression"`
	Lang       string `json:"lang,omitempty"` // "expr" (default) or "cel"
}

// TerminalConfig is the config block for terminal nodes.
type TerminalConfig struct {
	Output string `json:"output,omitempty"` // interpolated final output expression
}
