package techspec

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/watch-research/internal/model"
)

// CompletionRequest is a backend-neutral single-turn completion.
type CompletionRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Completion is a backend-neutral completion result.
type Completion struct {
	Model   string
	Content string
	Raw     json.RawMessage
}

// Completer is a non-search completion backend.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Fallback is the non-search provider. Any Completer can back it.
type Fallback struct {
	name       string
	configured bool
	completer  Completer
}

// NewFallback wraps completer under name. configured=false makes every
// FetchSpec call report "not configured" without touching the backend.
func NewFallback(name string, configured bool, completer Completer) *Fallback {
	return &Fallback{name: name, configured: configured, completer: completer}
}

// Name implements Provider.
func (f *Fallback) Name() string { return f.name }

// IsConfigured implements Provider.
func (f *Fallback) IsConfigured() bool { return f.configured && f.completer != nil }

// FetchSpec implements Provider.
func (f *Fallback) FetchSpec(ctx context.Context, brand *string, ref string, modelName *string) *model.TechnicalSpecResult {
	if !f.IsConfigured() {
		return failed(f.name, errNotConfigured)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := f.completer.Complete(ctx, CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildPrompt(brand, ref, modelName, false),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		zap.L().Warn("techspec: fallback request failed",
			zap.String("provider", f.name),
			zap.String("reference_number", ref),
			zap.Error(err),
		)
		return failed(f.name, err.Error())
	}

	fields := ParseSpecContent(resp.Content)
	// The non-search backend never contributes image suggestions.
	delete(fields, model.ImageURLsKey)

	zap.L().Info("techspec: fallback spec fetched",
		zap.String("provider", f.name),
		zap.String("model", resp.Model),
		zap.String("reference_number", ref),
		zap.Int("fields", len(fields.Known())),
	)

	return &model.TechnicalSpecResult{
		Success:     true,
		Provider:    f.name,
		Fields:      fields,
		RawResponse: resp.Raw,
	}
}
