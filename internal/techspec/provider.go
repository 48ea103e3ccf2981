// Package techspec fetches structured technical data for a watch from AI
// completion backends.
package techspec

import (
	"context"
	"time"

	"github.com/sells-group/watch-research/internal/model"
)

// Provider names.
const (
	NamePerplexity = "perplexity"
	NameOpenAI     = "openai"
	NameAnthropic  = "anthropic"
	NameGemini     = "gemini"
)

const (
	requestTimeout = 60 * time.Second
	temperature    = 0.2
	maxTokens      = 2000

	errNotConfigured = "not configured"
)

// Provider fetches a TechnicalSpecResult. Failures are reported inside the
// result; FetchSpec never panics and never returns an error value.
type Provider interface {
	Name() string
	IsConfigured() bool
	FetchSpec(ctx context.Context, brand *string, ref string, modelName *string) *model.TechnicalSpecResult
}

// LogSource maps a provider name onto its research-log source.
func LogSource(name string) model.LogSource {
	switch name {
	case NamePerplexity:
		return model.LogSourcePerplexity
	case NameAnthropic:
		return model.LogSourceAnthropic
	case NameGemini:
		return model.LogSourceGemini
	default:
		return model.LogSourceOpenAI
	}
}

func failed(provider, reason string) *model.TechnicalSpecResult {
	return &model.TechnicalSpecResult{
		Success:  false,
		Provider: provider,
		Error:    reason,
	}
}
