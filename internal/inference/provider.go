// Package inference sends prompt-node requests to a language model backend.
// Providers do the actual completion; the Queue in front of them caps
// concurrent requests per model so a burst of runs cannot swamp a backend.
package inference

import "context"

// Request is a single completion request produced by a prompt node after
// template interpolation.
type Request struct {
	// Model selects the backend model, e.g. "gpt-4o-mini".
	Model string
	// System is an optional system prompt.
	System string
	// Prompt is the interpolated user prompt.
	Prompt string
	// Params carries model tuning knobs: temperature, max_tokens, top_p.
	// Unknown keys are ignored.
	Params map[string]any
}

// Provider produces a completion for a request. Implementations must honor
// ctx cancellation.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string
	// Complete returns the model's text output for the request.
	Complete(ctx context.Context, req Request) (string, error)
}
