package validation

import (
	"encoding/json"
	"fmt"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// validateGraph checks node and edge references: duplicate node IDs, the
// entry node, edge endpoints, and per-kind successor requirements. Cycles
// are allowed; the runner's step cap bounds them at execution time.
func validateGraph(def *schema.AgentDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	nodes := make(map[string]*schema.Node, len(def.Nodes))
	for i := range def.Nodes {
		n := &def.Nodes[i]
		if _, exists := nodes[n.ID]; exists {
			result.AddError(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		nodes[n.ID] = n
	}

	if _, ok := nodes[def.EntryNode]; !ok {
		result.AddError("entry_node", schema.ErrCodeValidation,
			fmt.Sprintf("entry node %q is not defined", def.EntryNode))
	}

	// outgoing[from][branch] counts parallel edges per branch value.
	outgoing := make(map[string]map[string]int, len(def.Nodes))
	for i, e := range def.Edges {
		path := fmt.Sprintf("edges[%d]", i)
		if _, ok := nodes[e.From]; !ok {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("edge references unknown node %q", e.From))
			continue
		}
		if _, ok := nodes[e.To]; !ok {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("edge references unknown node %q", e.To))
			continue
		}
		branches := outgoing[e.From]
		if branches == nil {
			branches = make(map[string]int)
			outgoing[e.From] = branches
		}
		branches[e.Branch]++
		if branches[e.Branch] == 2 {
			result.AddError(path, schema.ErrCodeValidation,
				fmt.Sprintf("node %q has multiple edges for branch %q", e.From, e.Branch))
		}
	}

	for _, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%s]", n.ID)
		branches := outgoing[n.ID]

		switch n.Kind {
		case schema.NodeKindTerminal:
			for branch := range branches {
				if branch != schema.BranchError {
					result.AddWarning(path, schema.ErrCodeValidation,
						fmt.Sprintf("terminal node %q has an outgoing edge that will never be followed", n.ID))
					break
				}
			}
		case schema.NodeKindCondition:
			hasBranch := false
			for branch := range branches {
				if branch != schema.BranchError {
					hasBranch = true
					break
				}
			}
			if !hasBranch {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("condition node %q has no branch edges", n.ID))
			} else if branches[schema.BranchDefault] == 0 {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("condition node %q has no %q branch; unmatched values fail the run", n.ID, schema.BranchDefault))
			}
		default:
			if branches[""] == 0 {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("node %q has no successor edge", n.ID))
			}
		}
	}

	if !result.Valid() {
		return result
	}

	// Reachability: BFS from the entry node over every edge kind.
	adjacency := make(map[string][]string, len(def.Edges))
	for _, e := range def.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	reachable := map[string]bool{def.EntryNode: true}
	queue := []string{def.EntryNode}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[node] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, n := range def.Nodes {
		if !reachable[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeValidation,
				fmt.Sprintf("node %q is unreachable from the entry node", n.ID))
		}
	}

	return result
}

// validateConfigs decodes each node's config and checks the fields the
// executors require at run time.
func validateConfigs(def *schema.AgentDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for _, n := range def.Nodes {
		path := fmt.Sprintf("nodes[%s].config", n.ID)

		decode := func(target any) bool {
			if len(n.Config) == 0 {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("%s node %q requires a config block", n.Kind, n.ID))
				return false
			}
			if err := json.Unmarshal(n.Config, target); err != nil {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("invalid config for node %q: %v", n.ID, err))
				return false
			}
			return true
		}

		switch n.Kind {
		case schema.NodeKindPrompt:
			var cfg schema.PromptConfig
			if decode(&cfg) && cfg.Template == "" {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("prompt node %q requires a template", n.ID))
			}
		case schema.NodeKindTool:
			var cfg schema.ToolConfig
			if decode(&cfg) && cfg.Tool == "" {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("tool node %q requires a tool name", n.ID))
			}
		case schema.NodeKindScript:
			var cfg schema.ScriptConfig
			if decode(&cfg) && cfg.Source == "" {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("script node %q requires source code", n.ID))
			}
		case schema.NodeKindCondition:
			var cfg schema.ConditionConfig
			if decode(&cfg) && cfg.Expression == "" {
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("condition node %q requires an expression", n.ID))
			}
		case schema.NodeKindTerminal:
			// Config is optional; empty output falls back to the last
			// node's output.
		}
	}

	return result
}
