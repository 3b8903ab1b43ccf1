package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider represents an AI provider type
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// Options contains options for creating a connector
type Options struct {
	Provider    Provider `json:"provider"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// Completion is the result of one model call: final text and/or a set of
// requested tool invocations the caller is expected to execute.
type Completion struct {
	Text      string
	ToolCalls []llms.ToolCall
}

// Gateway is the language model contract the orchestration loop consumes.
// It must tolerate an empty tool catalog.
type Gateway interface {
	Complete(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*Completion, error)
}

// Connector is a Gateway backed by a langchaingo model
type Connector struct {
	provider Provider
	llm      llms.Model
	options  Options
}

// NewConnector creates a new connector for the specified provider
func NewConnector(ctx context.Context, options Options) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("Creating new connector")

	switch options.Provider {
	case ProviderOpenAI:
		model, err = createOpenAIModel(ctx, options)
	case ProviderGemini:
		model, err = createGeminiModel(ctx, options)
	case ProviderClaude:
		model, err = createAnthropicModel(ctx, options)
	case ProviderOllama:
		model, err = createOllamaModel(ctx, options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{
		provider: options.Provider,
		llm:      model,
		options:  options,
	}, nil
}

// Complete invokes the model with the message sequence and the tool catalog.
// Errors are returned as-is; the orchestration loop treats any failure here
// as assistant-unavailable and does not retry.
func (c *Connector) Complete(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*Completion, error) {
	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.Temperature),
	}
	if c.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.MaxTokens))
	}
	if len(tools) > 0 {
		callOptions = append(callOptions, llms.WithTools(tools))
	}

	resp, err := c.llm.GenerateContent(ctx, messages, callOptions...)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("model returned no choices")
	}

	choice := resp.Choices[0]

	log.Debug().
		Str("provider", string(c.provider)).
		Int("tool_calls", len(choice.ToolCalls)).
		Int("content_len", len(choice.Content)).
		Msg("Model call completed")

	return &Completion{
		Text:      choice.Content,
		ToolCalls: choice.ToolCalls,
	}, nil
}

// Helper functions to create models for specific providers

func createOpenAIModel(ctx context.Context, options Options) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(options.Model),
		openai.WithToken(options.APIKey),
	}

	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}

	return openai.New(opts...)
}

func createGeminiModel(ctx context.Context, options Options) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
	}
	if options.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(options.Model))
	}

	return googleai.New(ctx, opts...)
}

func createAnthropicModel(ctx context.Context, options Options) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
		anthropic.WithModel(options.Model),
	}

	return anthropic.New(opts...)
}

func createOllamaModel(ctx context.Context, options Options) (llms.Model, error) {
	if options.BaseURL == "" {
		options.BaseURL = "http://localhost:11434"
	}

	opts := []ollama.Option{
		ollama.WithServerURL(options.BaseURL),
		ollama.WithModel(options.Model),
	}

	return ollama.New(opts...)
}
