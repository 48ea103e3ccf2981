package techspec

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/watch-research/pkg/anthropic"
	"github.com/sells-group/watch-research/pkg/gemini"
	"github.com/sells-group/watch-research/pkg/openai"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// OpenAICompleter adapts an openai.Client.
type OpenAICompleter struct {
	Client openai.Client
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temp, tokens := req.Temperature, req.MaxTokens
	resp, err := c.Client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Messages: []openai.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: &temp,
		MaxTokens:   &tokens,
	})
	if err != nil {
		return nil, err
	}
	return &Completion{Model: resp.Model, Content: resp.Content(), Raw: resp.Raw}, nil
}

// AnthropicCompleter adapts an anthropic.Client.
type AnthropicCompleter struct {
	Client anthropic.Client
	Model  string
}

// Complete implements Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temp := req.Temperature
	resp, err := c.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.Model,
		MaxTokens:   int64(req.MaxTokens),
		System:      []anthropic.SystemBlock{{Text: req.System}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	resp.Usage.LogCost(resp.Model, "specs")

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, eris.Wrap(err, "techspec: marshal anthropic response")
	}
	return &Completion{Model: resp.Model, Content: resp.Text(), Raw: raw}, nil
}

// GeminiCompleter adapts a gemini.Client.
type GeminiCompleter struct {
	Client gemini.Client
}

// Complete implements Completer.
func (c *GeminiCompleter) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	temp, tokens := float32(req.Temperature), int32(req.MaxTokens)
	resp, err := c.Client.Generate(ctx, gemini.GenerateRequest{
		System:      req.System,
		Prompt:      req.Prompt,
		Temperature: &temp,
		MaxTokens:   &tokens,
	})
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, eris.Wrap(err, "techspec: marshal gemini response")
	}
	return &Completion{Model: resp.Model, Content: resp.Text, Raw: raw}, nil
}

// BackendOptions configures NewBackend.
type BackendOptions struct {
	Backend string // openai, anthropic or gemini
	APIKey  string
	Model   string
	BaseURL string
}

// NewBackend builds the fallback provider for the configured backend. An
// empty key yields an unconfigured provider.
func NewBackend(opts BackendOptions) (*Fallback, error) {
	configured := opts.APIKey != ""

	switch opts.Backend {
	case NameOpenAI, "":
		var clientOpts []openai.Option
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
		}
		if opts.Model != "" {
			clientOpts = append(clientOpts, openai.WithModel(opts.Model))
		}
		return NewFallback(NameOpenAI, configured, &OpenAICompleter{
			Client: openai.NewClient(opts.APIKey, clientOpts...),
		}), nil

	case NameAnthropic:
		var clientOpts []anthropic.Option
		if opts.BaseURL != "" {
			clientOpts = append(clientOpts, anthropic.WithBaseURL(opts.BaseURL))
		}
		modelName := opts.Model
		if modelName == "" {
			modelName = defaultAnthropicModel
		}
		return NewFallback(NameAnthropic, configured, &AnthropicCompleter{
			Client: anthropic.NewClient(opts.APIKey, clientOpts...),
			Model:  modelName,
		}), nil

	case NameGemini:
		var clientOpts []gemini.Option
		if opts.Model != "" {
			clientOpts = append(clientOpts, gemini.WithModel(opts.Model))
		}
		return NewFallback(NameGemini, configured, &GeminiCompleter{
			Client: gemini.NewClient(opts.APIKey, clientOpts...),
		}), nil
	}

	return nil, eris.Errorf("techspec: unknown fallback backend %q", opts.Backend)
}
