package validation

import "github.com/nodeloom/nodeloom/pkg/schema"

// AgentValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Node configs
// 3. Graph (references, successors, reachability)
type AgentValidator struct {
	jsonSchema *JSONSchemaValidator
}

func NewAgentValidator() (*AgentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &AgentValidator{jsonSchema: jsv}, nil
}

// Validate runs the full pipeline and returns an aggregated result.
// Structural errors short-circuit: later stages assume a well-shaped graph.
func (av *AgentValidator) Validate(def *schema.AgentDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "agent definition is nil")
		return r
	}

	result := validateStructural(av.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	result.Merge(validateConfigs(def))
	result.Merge(validateGraph(def))
	return result
}

// ValidateDefinition satisfies the Validator interface.
func (av *AgentValidator) ValidateDefinition(def *schema.AgentDefinition) error {
	return av.Validate(def).ToError()
}

// ValidateInput delegates to the underlying JSONSchemaValidator.
func (av *AgentValidator) ValidateInput(input map[string]any, inputSchema []byte) error {
	return av.jsonSchema.ValidateInput(input, inputSchema)
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition, converting
// its error output into a ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.AgentDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	ee, ok := err.(*schema.EngineError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if ee.Details != nil {
		if violations, ok := ee.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, ee.Message)
	return result
}
