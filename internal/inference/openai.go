package inference

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// OpenAIConfig configures the OpenAI-compatible provider. BaseURL allows
// pointing at any server that speaks the chat completions API, including
// local runtimes.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAIProvider completes prompts through the chat completions API.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider creates a provider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.DefaultModel,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends a single-turn chat completion and returns the first
// choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "no model specified and no default configured")
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	applyParams(&chatReq, req.Params)

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", schema.NewError(schema.ErrCodeCancelled, "completion cancelled").WithCause(ctx.Err())
		}
		return "", schema.NewErrorf(schema.ErrCodeInference, "chat completion against %s", model).WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return "", schema.NewErrorf(schema.ErrCodeInference, "model %s returned no choices", model)
	}

	return resp.Choices[0].Message.Content, nil
}

// applyParams maps the generic params bag onto the request. Values arrive as
// float64 after JSON decoding.
func applyParams(req *openai.ChatCompletionRequest, params map[string]any) {
	if v, ok := floatParam(params, "temperature"); ok {
		req.Temperature = float32(v)
	}
	if v, ok := floatParam(params, "top_p"); ok {
		req.TopP = float32(v)
	}
	if v, ok := floatParam(params, "max_tokens"); ok {
		req.MaxTokens = int(v)
	}
	if stops, ok := params["stop"].([]any); ok {
		for _, s := range stops {
			if str, isStr := s.(string); isStr {
				req.Stop = append(req.Stop, str)
			}
		}
	}
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
