// Package diagram renders agent graphs as Mermaid flowcharts.
package diagram

import (
	"fmt"
	"strings"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// RenderMermaid renders an agent definition as a Mermaid flowchart string.
// The entry node gets a start bubble; edge labels carry branch values.
func RenderMermaid(def *schema.AgentDefinition) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if def.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", def.Name))
	}

	b.WriteString("    __start((\"start\"))\n")
	for _, node := range def.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", nodeDef(&node)))
	}

	b.WriteString(fmt.Sprintf("    __start --> %s\n", safeID(def.EntryNode)))
	for _, edge := range def.Edges {
		label := ""
		if edge.Branch != "" {
			label = fmt.Sprintf("|%s|", edge.Branch)
		}
		arrow := "-->"
		if edge.Branch == schema.BranchError {
			arrow = "-.->"
		}
		b.WriteString(fmt.Sprintf("    %s %s%s %s\n",
			safeID(edge.From), arrow, label, safeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef prompt fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef tool fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef script fill:#6b4f1a,stroke:#4a3612,color:#fff\n")
	b.WriteString("    classDef condition fill:#6b1a5e,stroke:#4a1242,color:#fff\n")
	b.WriteString("    classDef terminal fill:#4a4a4a,stroke:#333,color:#fff\n")
	for _, node := range def.Nodes {
		b.WriteString(fmt.Sprintf("    class %s %s\n", safeID(node.ID), node.Kind))
	}

	return b.String()
}

// nodeDef returns a Mermaid node definition with a shape per kind.
func nodeDef(node *schema.Node) string {
	id := safeID(node.ID)
	label := escapeLabel(labelFor(node))

	switch node.Kind {
	case schema.NodeKindCondition:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.NodeKindTool:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case schema.NodeKindScript:
		return fmt.Sprintf("%s([%q])", id, label)
	case schema.NodeKindTerminal:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // prompt
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

func labelFor(node *schema.Node) string {
	if node.Label != "" {
		return node.Label
	}
	return node.ID
}

// safeID converts a node ID to a Mermaid-safe identifier.
func safeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// escapeLabel keeps labels to one line; quotes are handled by %q.
func escapeLabel(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
