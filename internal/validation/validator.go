package validation

import "github.com/nodeloom/nodeloom/pkg/schema"

// Validator checks agent definitions for correctness before execution.
// Uses JSON Schema Draft 2020-12 for structural validation.
type Validator interface {
	ValidateDefinition(def *schema.AgentDefinition) error
	ValidateInput(input map[string]any, inputSchema []byte) error
}
